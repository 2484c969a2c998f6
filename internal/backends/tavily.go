package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"go.uber.org/zap"
)

// tavilyMaxResults is the number of results requested per query.
const tavilyMaxResults = 10

// Tavily runs web searches through the Tavily search API and turns each
// result page into a candidate company.
type Tavily struct {
	client *apiClient
	apiKey string
	logger *zap.Logger
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

// NewTavily creates the backend. An API key is required.
func NewTavily(cfg HTTPConfig, logger *zap.Logger) (*Tavily, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: tavily API key required", ErrInvalidConfig)
	}
	client, err := newAPIClient(string(discovery.SourceTavily), cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Tavily{client: client, apiKey: cfg.APIKey, logger: client.logger}, nil
}

// Name implements discovery.SearchBackend.
func (t *Tavily) Name() string { return string(discovery.SourceTavily) }

// Search implements discovery.SearchBackend.
func (t *Tavily) Search(ctx context.Context, query string, req discovery.DiscoveryRequest) ([]discovery.CompanyMatch, error) {
	var resp tavilyResponse
	err := t.client.postJSON(ctx, "/search", tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  tavilyMaxResults,
	}, &resp)
	if err != nil {
		return nil, err
	}

	self := discovery.NormalizeName(req.CompanyName)
	matches := make([]discovery.CompanyMatch, 0, len(resp.Results))
	for _, r := range resp.Results {
		domain := NormalizeDomain(r.URL)
		name := CleanCompanyName(r.Title)
		if name == "" {
			name = NameFromDomain(domain)
		}
		if name == "" || discovery.NormalizeName(name) == self {
			continue
		}

		m := discovery.NewCompanyMatch(name, discovery.SourceTavily)
		m.Domain = domain
		m.Description = strings.TrimSpace(r.Content)
		m.SimilarityScore = clampScore(r.Score)
		m.SearchQueryUsed = query
		m.RawData["url"] = r.URL
		matches = append(matches, m)
	}

	t.logger.Debug("tavily search completed",
		zap.String("query", query),
		zap.Int("results", len(resp.Results)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// HealthCheck implements discovery.HealthChecker.
func (t *Tavily) HealthCheck(ctx context.Context) error {
	return t.client.ping(ctx)
}

var (
	_ discovery.SearchBackend = (*Tavily)(nil)
	_ discovery.HealthChecker = (*Tavily)(nil)
)
