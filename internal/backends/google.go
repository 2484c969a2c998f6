package backends

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"go.uber.org/zap"
)

const (
	googleMaxResults = 5
	// googleSimilarity is the flat score given to fallback hits, which carry
	// no relevance signal of their own.
	googleSimilarity = 0.3
)

// GoogleConfig configures the Custom Search fallback.
type GoogleConfig struct {
	HTTPConfig
	SearchEngineID string
}

// Google is the last-resort fallback backed by the Custom Search JSON API.
type Google struct {
	client *apiClient
	apiKey string
	cx     string
	logger *zap.Logger
}

type googleResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		DisplayLink string `json:"displayLink"`
		Snippet     string `json:"snippet"`
	} `json:"items"`
}

// NewGoogle creates the fallback. API key and search engine ID are required.
func NewGoogle(cfg GoogleConfig, logger *zap.Logger) (*Google, error) {
	if cfg.APIKey == "" || cfg.SearchEngineID == "" {
		return nil, fmt.Errorf("%w: google API key and search engine ID required", ErrInvalidConfig)
	}
	client, err := newAPIClient(string(discovery.SourceGoogleSearch), cfg.HTTPConfig, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Google{client: client, apiKey: cfg.APIKey, cx: cfg.SearchEngineID, logger: client.logger}, nil
}

// Search implements discovery.FallbackSearch.
func (g *Google) Search(ctx context.Context, companyName string) ([]discovery.CompanyMatch, error) {
	query := fmt.Sprintf("companies similar to %s", companyName)
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cx)
	params.Set("q", query)
	params.Set("num", fmt.Sprint(googleMaxResults))

	var resp googleResponse
	if err := g.client.getJSON(ctx, "?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	self := discovery.NormalizeName(companyName)
	seen := make(map[string]bool)
	matches := make([]discovery.CompanyMatch, 0, googleMaxResults)
	for _, item := range resp.Items {
		if len(matches) == googleMaxResults {
			break
		}
		domain := NormalizeDomain(firstNonEmpty(item.Link, item.DisplayLink))
		name := CleanCompanyName(item.Title)
		if name == "" {
			name = NameFromDomain(domain)
		}
		key := discovery.NormalizeName(name)
		if key == "" || key == self || seen[key] {
			continue
		}
		seen[key] = true

		m := discovery.NewCompanyMatch(name, discovery.SourceGoogleSearch)
		m.Domain = domain
		m.Description = strings.TrimSpace(item.Snippet)
		m.SimilarityScore = googleSimilarity
		m.SearchQueryUsed = query
		m.RawData["url"] = item.Link
		matches = append(matches, m)
	}

	g.logger.Debug("fallback search completed",
		zap.String("company", companyName),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

var _ discovery.FallbackSearch = (*Google)(nil)
