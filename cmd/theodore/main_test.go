package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/theodore/internal/config"
	thttp "github.com/fyrsmithlabs/theodore/internal/http"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.VectorStore.Provider = "none"
	return cfg
}

func TestNewApp_NoBackends(t *testing.T) {
	a, err := newApp(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 0, a.registry.Len())
	assert.Nil(t, a.companies)
	assert.Nil(t, a.publisher)
	assert.NotNil(t, a.orchestrator)
}

func TestNewApp_RegistersConfiguredBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Perplexity.APIKey = "pplx-test"
	cfg.Tavily.APIKey = "tvly-test"
	cfg.SearchDroid.Endpoint = "http://127.0.0.1:1/mcp"
	cfg.Google.APIKey = "g-key"
	cfg.Google.SearchEngineID = "cx"

	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.ElementsMatch(t, []string{"mcp_perplexity", "mcp_tavily", "mcp_search_droid"}, a.registry.AvailableTools())

	fb, err := a.fallback()
	require.NoError(t, err)
	assert.NotNil(t, fb)
}

func TestNewApp_NATSUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.NATS.URL = "nats://127.0.0.1:1"

	_, err := newApp(cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "connecting to nats")
}

func TestNewHTTPServer_Routes(t *testing.T) {
	cfg := testConfig()
	cfg.Tavily.APIKey = "tvly-test"
	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	srv, err := newHTTPServer(a)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backends", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var backends thttp.BackendsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &backends))
	assert.Equal(t, []string{"mcp_tavily"}, backends.Available)

	// No store configured.
	rec = httptest.NewRecorder()
	body := bytes.NewBufferString(`{"companies":[{"company_name":"Stripe"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies", body)
	req.Header.Set("Content-Type", "application/json")
	srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// MCP is mounted.
	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}
