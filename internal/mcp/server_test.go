package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

type stubDiscoverer struct {
	got discovery.DiscoveryRequest
}

func (d *stubDiscoverer) Execute(_ context.Context, req discovery.DiscoveryRequest) discovery.DiscoveryResult {
	d.got = req
	m := discovery.NewCompanyMatch("Adyen", discovery.SourceTavily)
	m.Domain = "adyen.com"
	m.SimilarityScore = 0.8
	m.ConfidenceScore = 0.9
	return discovery.DiscoveryResult{
		DiscoveryID:       "d-1",
		QueryCompany:      req.CompanyName,
		SearchStrategy:    discovery.StrategyWebOnly,
		TotalSourcesUsed:  1,
		Matches:           []discovery.CompanyMatch{m},
		TotalMatches:      1,
		ErrorsEncountered: []string{},
	}
}

type stubIndexer struct {
	stored []discovery.CompanyMatch
}

func (s *stubIndexer) IndexCompanies(_ context.Context, companies []discovery.CompanyMatch) ([]string, error) {
	s.stored = append(s.stored, companies...)
	ids := make([]string, len(companies))
	for i, c := range companies {
		ids[i] = c.NormalizedName()
	}
	return ids, nil
}

func (s *stubIndexer) Count(context.Context) (int, error) { return len(s.stored), nil }

type checkableBackend struct {
	name string
	err  error
}

func (b checkableBackend) Name() string { return b.name }

func (checkableBackend) Search(context.Context, string, discovery.DiscoveryRequest) ([]discovery.CompanyMatch, error) {
	return nil, nil
}

func (b checkableBackend) HealthCheck(context.Context) error { return b.err }

type fixture struct {
	discoverer *stubDiscoverer
	registry   *discovery.Registry
	indexer    *stubIndexer
	session    *mcp.ClientSession
}

func newFixture(t *testing.T, withOptional bool) *fixture {
	t.Helper()
	f := &fixture{
		discoverer: &stubDiscoverer{},
		registry:   discovery.NewRegistry(nil),
		indexer:    &stubIndexer{},
	}

	var (
		prober  HealthProber
		indexer CompanyIndexer
	)
	if withOptional {
		prober = discovery.NewHealthMonitor(f.registry, 0, 0, nil)
		indexer = f.indexer
	}

	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	srv, err := NewServer(cfg, f.discoverer, f.registry, prober, indexer)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	serverSession, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	f.session, err = client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	return res
}

func decodeStructured(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.NotNil(t, res.StructuredContent)
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func text(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, nil, discovery.NewRegistry(nil), nil, nil)
	assert.ErrorContains(t, err, "discoverer is required")

	_, err = NewServer(nil, &stubDiscoverer{}, nil, nil, nil)
	assert.ErrorContains(t, err, "registry is required")
}

func TestServer_ListTools(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"discover_similar_companies",
		"list_search_backends",
		"check_search_backends",
		"index_companies",
	}, names)
}

func TestDiscoverSimilarCompanies(t *testing.T) {
	f := newFixture(t, false)

	res := f.call(t, "discover_similar_companies", map[string]any{
		"company_name":          " Stripe ",
		"max_results":           10,
		"include_web_discovery": true,
		"industry_filter":       "fintech",
	})
	require.False(t, res.IsError, text(res))

	assert.Equal(t, "Stripe", f.discoverer.got.CompanyName)
	assert.Equal(t, 10, f.discoverer.got.MaxResults)
	assert.Equal(t, "fintech", f.discoverer.got.IndustryFilter)
	assert.True(t, f.discoverer.got.IncludeDatabaseSearch)

	var result discovery.DiscoveryResult
	decodeStructured(t, res, &result)
	assert.Equal(t, "d-1", result.DiscoveryID)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "Adyen", result.Matches[0].CompanyName)

	assert.Contains(t, text(res), "Found 1 companies similar to Stripe")
	assert.Contains(t, text(res), "Adyen (adyen.com)")
}

func TestDiscoverSimilarCompanies_InvalidRequest(t *testing.T) {
	f := newFixture(t, false)
	res := f.call(t, "discover_similar_companies", map[string]any{"company_name": "Stripe", "max_results": 1000})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "max_results")
}

func TestListSearchBackends(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.registry.Register(checkableBackend{name: "mcp_tavily"}))
	require.NoError(t, f.registry.Register(checkableBackend{name: "mcp_perplexity"}))
	require.NoError(t, f.registry.MarkUnhealthy("mcp_tavily", errors.New("429")))

	res := f.call(t, "list_search_backends", nil)
	require.False(t, res.IsError)
	assert.Equal(t, "1 of 2 backends healthy", text(res))

	var out backendsOutput
	decodeStructured(t, res, &out)
	assert.Equal(t, []string{"mcp_perplexity"}, out.Available)
	require.Len(t, out.Backends, 2)
}

func TestCheckSearchBackends(t *testing.T) {
	t.Run("without monitor", func(t *testing.T) {
		f := newFixture(t, false)
		res := f.call(t, "check_search_backends", nil)
		assert.True(t, res.IsError)
	})

	t.Run("recovers healthy backends", func(t *testing.T) {
		f := newFixture(t, true)
		require.NoError(t, f.registry.Register(checkableBackend{name: "mcp_tavily"}))
		require.NoError(t, f.registry.MarkUnhealthy("mcp_tavily", errors.New("timeout")))

		res := f.call(t, "check_search_backends", nil)
		require.False(t, res.IsError, text(res))

		var out checkOutput
		decodeStructured(t, res, &out)
		assert.Equal(t, []string{"mcp_tavily"}, out.Recovered)
		assert.Equal(t, []string{"mcp_tavily"}, f.registry.AvailableTools())
	})
}

func TestIndexCompanies(t *testing.T) {
	t.Run("without store", func(t *testing.T) {
		f := newFixture(t, false)
		res := f.call(t, "index_companies", map[string]any{
			"companies": []any{map[string]any{"company_name": "Stripe"}},
		})
		assert.True(t, res.IsError)
		assert.Contains(t, text(res), "not configured")
	})

	t.Run("stores companies", func(t *testing.T) {
		f := newFixture(t, true)
		res := f.call(t, "index_companies", map[string]any{
			"companies": []any{
				map[string]any{"company_name": "Stripe", "domain": "stripe.com", "employee_count": 8000},
				map[string]any{"company_name": "Adyen"},
			},
		})
		require.False(t, res.IsError, text(res))

		var out indexOutput
		decodeStructured(t, res, &out)
		assert.Equal(t, []string{"stripe", "adyen"}, out.IDs)
		assert.Equal(t, 2, out.Total)

		require.Len(t, f.indexer.stored, 2)
		assert.Equal(t, discovery.SourceManualResearch, f.indexer.stored[0].Source)
		require.NotNil(t, f.indexer.stored[0].EmployeeCount)
		assert.Equal(t, 8000, *f.indexer.stored[0].EmployeeCount)
	})

	t.Run("rejects blank names", func(t *testing.T) {
		f := newFixture(t, true)
		res := f.call(t, "index_companies", map[string]any{
			"companies": []any{map[string]any{"company_name": "  "}},
		})
		assert.True(t, res.IsError)
		assert.Empty(t, f.indexer.stored)
	})
}

func TestServer_HTTPHandler(t *testing.T) {
	srv, err := NewServer(nil, &stubDiscoverer{}, discovery.NewRegistry(nil), nil, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: ts.URL}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "discover_similar_companies",
		Arguments: map[string]any{"company_name": "Stripe"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestSummarize(t *testing.T) {
	r := discovery.DiscoveryResult{
		QueryCompany:      "Stripe",
		SearchStrategy:    discovery.StrategyHybrid,
		ErrorsEncountered: []string{"mcp_tavily: timeout"},
	}
	for i := 0; i < 12; i++ {
		r.Matches = append(r.Matches, discovery.NewCompanyMatch("Co", discovery.SourceTavily))
	}
	r.TotalMatches = len(r.Matches)

	out := summarize(r)
	assert.Contains(t, out, "Found 12 companies similar to Stripe (strategy: hybrid")
	assert.Contains(t, out, "... and 2 more")
	assert.Contains(t, out, "warning: mcp_tavily: timeout")
}
