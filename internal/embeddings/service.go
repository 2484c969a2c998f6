// Package embeddings generates vector embeddings via langchaingo.
//
// Any OpenAI-compatible endpoint works: the OpenAI API itself or a local
// TEI (Text Embeddings Inference) server exposing /v1/embeddings.
//
//	svc, err := embeddings.NewService(embeddings.Config{
//	    BaseURL: "https://api.openai.com/v1",
//	    Model:   "text-embedding-3-small",
//	    APIKey:  key,
//	}, logger)
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/fyrsmithlabs/theodore/internal/vectorstore"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// DefaultBatchSize caps the number of texts sent per request.
const DefaultBatchSize = 256

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://api.openai.com/v1
	BaseURL string

	// Model is the embedding model, e.g. text-embedding-3-small
	Model string

	// APIKey is required for OpenAI, optional for TEI
	APIKey string

	// BatchSize is the number of texts per request (default 256)
	BatchSize int
}

// ConfigFrom maps the embeddings section of the application config.
func ConfigFrom(cfg config.EmbeddingsConfig) Config {
	return Config{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey.Value(),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Service implements vectorstore.Embedder on top of langchaingo.
type Service struct {
	embedder embeddings.Embedder
	config   Config
	metrics  *Metrics
	logger   *zap.Logger
}

// NewService creates a new embedding service with the given configuration.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	token := cfg.APIKey
	if token == "" {
		// langchaingo requires a token even when TEI ignores it
		token = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder: embedder,
		config:   cfg,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err = s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		s.logger.Warn("embedding documents failed",
			zap.String("model", s.config.Model),
			zap.Int("count", len(texts)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vector, err = s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vector, nil
}

var _ vectorstore.Embedder = (*Service)(nil)
