// Package config provides configuration loading for theodore.
//
// Configuration is read from a YAML file and environment variables, then
// completed with defaults. Each search backend, store and transport has its
// own section.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete theodore configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Discovery     DiscoveryConfig     `koanf:"discovery"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Chromem       ChromemConfig       `koanf:"chromem"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Perplexity    PerplexityConfig    `koanf:"perplexity"`
	Tavily        TavilyConfig        `koanf:"tavily"`
	SearchDroid   SearchDroidConfig   `koanf:"searchdroid"`
	Google        GoogleConfig        `koanf:"google"`
	NATS          NATSConfig          `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"otlp_endpoint"`
	Protocol        string  `koanf:"otlp_protocol"` // grpc or http/protobuf
	Insecure        bool    `koanf:"otlp_insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	OTEL   bool   `koanf:"otel"`
}

// DiscoveryConfig tunes the discovery pipeline.
type DiscoveryConfig struct {
	MaxConcurrency         int      `koanf:"max_concurrency"`
	Timeout                Duration `koanf:"timeout"`
	HealthCheckInterval    Duration `koanf:"health_check_interval"`
	HealthCheckConcurrency int      `koanf:"health_check_concurrency"`
	DisableTimeout         bool     `koanf:"disable_timeout"`
}

// VectorStoreConfig selects the company store provider.
type VectorStoreConfig struct {
	Provider string `koanf:"provider"` // chromem, qdrant or none
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	CollectionName string `koanf:"collection_name"`
	VectorSize     uint64 `koanf:"vector_size"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
}

// EmbeddingsConfig holds the embedding endpoint settings.
// Any OpenAI-compatible endpoint works, including a local TEI server.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// PerplexityConfig configures the Perplexity chat completions backend.
// The backend is registered only when APIKey is set.
type PerplexityConfig struct {
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	Timeout    Duration `koanf:"timeout"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	MaxRetries int      `koanf:"max_retries"`
}

// TavilyConfig configures the Tavily search backend.
// The backend is registered only when APIKey is set.
type TavilyConfig struct {
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Timeout    Duration `koanf:"timeout"`
	RateLimit  float64  `koanf:"rate_limit"`
	MaxRetries int      `koanf:"max_retries"`
}

// SearchDroidConfig configures the MCP-based Search Droid backend.
// The backend is registered only when Endpoint is set.
type SearchDroidConfig struct {
	Endpoint  string   `koanf:"endpoint"`
	Transport string   `koanf:"transport"` // streamable or sse
	Tool      string   `koanf:"tool"`
	Timeout   Duration `koanf:"timeout"`
}

// GoogleConfig configures the Custom Search fallback.
// The fallback is enabled only when APIKey and SearchEngineID are set.
type GoogleConfig struct {
	APIKey         Secret   `koanf:"api_key"`
	SearchEngineID string   `koanf:"search_engine_id"`
	BaseURL        string   `koanf:"base_url"`
	Timeout        Duration `koanf:"timeout"`
}

// Enabled reports whether the fallback has credentials.
func (g GoogleConfig) Enabled() bool {
	return g.APIKey.IsSet() && g.SearchEngineID != ""
}

// NATSConfig configures discovery event publishing.
// Publishing is disabled when URL is empty.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	ClientName    string `koanf:"client_name"`
}

// DiscoveryTimeout returns the per-request timeout, or a negative duration
// when timeouts are disabled.
func (c *Config) DiscoveryTimeout() time.Duration {
	if c.Discovery.DisableTimeout {
		return -1
	}
	return c.Discovery.Timeout.Duration()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %f", c.Observability.SampleRate)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Discovery.MaxConcurrency < 1 {
		return fmt.Errorf("discovery max concurrency must be at least 1, got %d", c.Discovery.MaxConcurrency)
	}
	if c.Discovery.HealthCheckConcurrency < 1 {
		return fmt.Errorf("health check concurrency must be at least 1, got %d", c.Discovery.HealthCheckConcurrency)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant", "none":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: chromem, qdrant, none)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" && (c.Qdrant.Port < 1 || c.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
	}

	if c.SearchDroid.Transport != "streamable" && c.SearchDroid.Transport != "sse" {
		return fmt.Errorf("searchdroid transport must be 'streamable' or 'sse', got %q", c.SearchDroid.Transport)
	}
	if c.Perplexity.RateLimit < 0 || c.Tavily.RateLimit < 0 {
		return errors.New("backend rate limits must not be negative")
	}

	return nil
}
