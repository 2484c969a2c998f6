package backends

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"go.uber.org/zap"
)

const perplexitySystemPrompt = `You are a market research assistant. Answer with a JSON array only. ` +
	`Each element must have the keys "name", "domain", "description", "industry", ` +
	`"business_model", "location" and "similarity" (0 to 1, how similar the company is to the one asked about).`

// PerplexityConfig configures the Perplexity backend.
type PerplexityConfig struct {
	HTTPConfig
	Model string
}

// Perplexity asks the Perplexity chat completions API for similar companies.
type Perplexity struct {
	client *apiClient
	model  string
	logger *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewPerplexity creates the backend. An API key is required.
func NewPerplexity(cfg PerplexityConfig, logger *zap.Logger) (*Perplexity, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: perplexity API key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	apiKey := cfg.APIKey
	client, err := newAPIClient(string(discovery.SourcePerplexity), cfg.HTTPConfig, func(h http.Header) {
		h.Set("Authorization", "Bearer "+apiKey)
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Perplexity{client: client, model: cfg.Model, logger: client.logger}, nil
}

// Name implements discovery.SearchBackend.
func (p *Perplexity) Name() string { return string(discovery.SourcePerplexity) }

// Search implements discovery.SearchBackend.
func (p *Perplexity) Search(ctx context.Context, query string, req discovery.DiscoveryRequest) ([]discovery.CompanyMatch, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0.2,
	}

	var resp chatResponse
	if err := p.client.postJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	// An answer without companies is an empty result, not a backend failure.
	if len(resp.Choices) == 0 {
		p.logger.Debug("reply had no choices", zap.String("query", query))
		return nil, nil
	}

	content := resp.Choices[0].Message.Content
	array, ok := firstJSONArray(content)
	if !ok {
		p.logger.Debug("no JSON array in reply", zap.String("query", query), zap.Int("reply_length", len(content)))
		return nil, nil
	}

	records, err := decodeCompanies([]byte(array))
	if err != nil {
		return nil, fmt.Errorf("decoding perplexity companies: %w", err)
	}
	return recordsToMatches(records, discovery.SourcePerplexity, query, req), nil
}

// HealthCheck implements discovery.HealthChecker.
func (p *Perplexity) HealthCheck(ctx context.Context) error {
	return p.client.ping(ctx)
}

var (
	_ discovery.SearchBackend = (*Perplexity)(nil)
	_ discovery.HealthChecker = (*Perplexity)(nil)
)
