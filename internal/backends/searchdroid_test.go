package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type droidHandler = func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error)

// startDroidServer serves one search_companies tool over in-memory
// transports and returns the client side.
func startDroidServer(t *testing.T, handler droidHandler) mcp.Transport {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "search-droid", Version: "test"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        defaultSearchDroidTool,
		Description: "Find companies similar to a query",
	}, handler)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })
	return clientTransport
}

func TestNewSearchDroid_Validation(t *testing.T) {
	_, err := NewSearchDroid(SearchDroidConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSearchDroid(SearchDroidConfig{Endpoint: "http://droid", Transport: "grpc"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d, err := NewSearchDroid(SearchDroidConfig{Endpoint: "http://droid"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "streamable", d.cfg.Transport)
	assert.Equal(t, defaultSearchDroidTool, d.cfg.Tool)
	assert.Equal(t, "mcp_search_droid", d.Name())
}

func TestSearchDroid_Search(t *testing.T) {
	var got map[string]any
	transport := startDroidServer(t, func(_ context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		got = args
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: `{"companies":[` +
				`{"company_name":"Adyen","domain":"adyen.com","similarity_score":0.8,"employee_count":4000},` +
				`{"company_name":"Stripe"}]}`}},
		}, nil, nil
	})

	d, err := NewSearchDroid(SearchDroidConfig{ClientTransport: transport}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	req := discovery.NewDiscoveryRequest("Stripe")
	req.IndustryFilter = "fintech"

	matches, err := d.Search(context.Background(), "stripe alternatives", req)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Adyen", matches[0].CompanyName)
	assert.Equal(t, 0.8, matches[0].SimilarityScore)
	require.NotNil(t, matches[0].EmployeeCount)
	assert.Equal(t, 4000, *matches[0].EmployeeCount)
	assert.Equal(t, discovery.SourceSearchDroid, matches[0].Source)

	assert.Equal(t, "stripe alternatives", got["query"])
	assert.Equal(t, "Stripe", got["company_name"])
	assert.Equal(t, "fintech", got["industry_filter"])

	assert.NoError(t, d.HealthCheck(context.Background()))
}

func TestSearchDroid_ToolError(t *testing.T) {
	transport := startDroidServer(t, func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, any, error) {
		return nil, nil, errors.New("upstream quota exceeded")
	})

	d, err := NewSearchDroid(SearchDroidConfig{ClientTransport: transport}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	_, err = d.Search(context.Background(), "q", discovery.NewDiscoveryRequest("Stripe"))
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "upstream quota exceeded")
}

func TestSearchDroid_NoJSON(t *testing.T) {
	transport := startDroidServer(t, func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "nothing found"}}}, nil, nil
	})

	d, err := NewSearchDroid(SearchDroidConfig{ClientTransport: transport}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	matches, err := d.Search(context.Background(), "q", discovery.NewDiscoveryRequest("Stripe"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestToolResultJSON_Structured(t *testing.T) {
	data, ok, err := toolResultJSON(&mcp.CallToolResult{
		StructuredContent: map[string]any{"results": []any{map[string]any{"name": "Adyen"}}},
	})
	require.NoError(t, err)
	require.True(t, ok)
	records, err := decodeCompanies(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Adyen", records[0].Name)
}
