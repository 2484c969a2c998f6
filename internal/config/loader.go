package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, TAVILY_API_KEY, etc.)
//  2. YAML config file (~/.config/theodore/config.yaml)
//  3. Hardcoded defaults
//
// A missing file is not an error. An existing file must be 0600 or 0400,
// at most 1MB, and live under ~/.config/theodore/ or /etc/theodore/.
//
// Environment variables are lowercased and split on the first underscore:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	DISCOVERY_MAX_CONCURRENCY -> discovery.max_concurrency
//	GOOGLE_SEARCH_ENGINE_ID   -> google.search_engine_id
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate the opened descriptor to avoid a TOCTOU race
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(s)
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// ConfigDir returns ~/.config/theodore.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "theodore"), nil
}

// EnsureConfigDir creates the theodore config directory with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	// Paths that do not exist yet keep their absolute form.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	userDir, err := ConfigDir()
	if err != nil {
		return err
	}

	for _, dir := range []string{userDir, "/etc/theodore"} {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/theodore/ or /etc/theodore/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Observability
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "theodore"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Discovery
	if cfg.Discovery.MaxConcurrency == 0 {
		cfg.Discovery.MaxConcurrency = 5
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(60 * time.Second)
	}
	if cfg.Discovery.HealthCheckInterval == 0 {
		cfg.Discovery.HealthCheckInterval = Duration(time.Minute)
	}
	if cfg.Discovery.HealthCheckConcurrency == 0 {
		cfg.Discovery.HealthCheckConcurrency = 4
	}

	// Vector store (chromem is the default: embedded, no external service)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "~/.config/theodore/vectorstore"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "theodore_companies"
	}
	if cfg.Chromem.VectorSize == 0 {
		cfg.Chromem.VectorSize = 1536
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.CollectionName == "" {
		cfg.Qdrant.CollectionName = "theodore_companies"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 1536
	}

	// Embeddings
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}

	// Backends
	if cfg.Perplexity.BaseURL == "" {
		cfg.Perplexity.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Perplexity.Model == "" {
		cfg.Perplexity.Model = "sonar"
	}
	if cfg.Perplexity.Timeout == 0 {
		cfg.Perplexity.Timeout = Duration(30 * time.Second)
	}
	if cfg.Perplexity.RateLimit == 0 {
		cfg.Perplexity.RateLimit = 2
	}
	if cfg.Perplexity.MaxRetries == 0 {
		cfg.Perplexity.MaxRetries = 2
	}
	if cfg.Tavily.BaseURL == "" {
		cfg.Tavily.BaseURL = "https://api.tavily.com"
	}
	if cfg.Tavily.Timeout == 0 {
		cfg.Tavily.Timeout = Duration(20 * time.Second)
	}
	if cfg.Tavily.RateLimit == 0 {
		cfg.Tavily.RateLimit = 5
	}
	if cfg.Tavily.MaxRetries == 0 {
		cfg.Tavily.MaxRetries = 2
	}
	if cfg.SearchDroid.Transport == "" {
		cfg.SearchDroid.Transport = "streamable"
	}
	if cfg.SearchDroid.Tool == "" {
		cfg.SearchDroid.Tool = "search_companies"
	}
	if cfg.SearchDroid.Timeout == 0 {
		cfg.SearchDroid.Timeout = Duration(30 * time.Second)
	}
	if cfg.Google.BaseURL == "" {
		cfg.Google.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if cfg.Google.Timeout == 0 {
		cfg.Google.Timeout = Duration(15 * time.Second)
	}

	// Events
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "theodore"
	}
	if cfg.NATS.ClientName == "" {
		cfg.NATS.ClientName = "theodore"
	}
}
