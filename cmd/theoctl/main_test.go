package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/events"
	thttp "github.com/fyrsmithlabs/theodore/internal/http"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writers and readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// fakeServer serves canned API answers and records the last request body.
type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	lastBody []byte
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/discover", func(w http.ResponseWriter, r *http.Request) {
		var req thttp.DiscoverRequest
		f.record(r)
		_ = json.Unmarshal(f.body(), &req)

		m := discovery.NewCompanyMatch("Adyen", discovery.SourcePerplexity)
		m.Domain = "adyen.com"
		m.Industry = "fintech"
		m.SimilarityScore = 0.82
		m.ConfidenceScore = 0.7
		reply(w, http.StatusOK, discovery.DiscoveryResult{
			QueryCompany:      req.CompanyName,
			SearchStrategy:    discovery.StrategyHybrid,
			TotalSourcesUsed:  2,
			Matches:           []discovery.CompanyMatch{m},
			TotalMatches:      1,
			ErrorsEncountered: []string{"mcp_tavily: timeout"},
		})
	})
	mux.HandleFunc("GET /api/v1/backends", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, thttp.BackendsResponse{
			Backends: []discovery.BackendStatus{
				{Name: "mcp_perplexity", Healthy: true},
				{Name: "mcp_tavily", Healthy: false, LastError: "rate limited"},
			},
			Available: []string{"mcp_perplexity"},
		})
	})
	mux.HandleFunc("POST /api/v1/backends/check", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, thttp.CheckResponse{
			Recovered: []string{"mcp_tavily"},
			Backends:  []discovery.BackendStatus{{Name: "mcp_tavily", Healthy: true}},
		})
	})
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, thttp.StatusResponse{Status: "ok", Version: "1.0.0", Backends: 2, Healthy: 1, Companies: -1})
	})
	mux.HandleFunc("POST /api/v1/companies", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var req thttp.IndexRequest
		_ = json.Unmarshal(f.body(), &req)
		reply(w, http.StatusCreated, thttp.IndexResponse{Total: len(req.Companies)})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) record(r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.lastBody = data
	f.mu.Unlock()
}

func (f *fakeServer) body() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDiscoverCmd(t *testing.T) {
	srv := newFakeServer(t)

	out, err := run(t, nil, "discover", "--server", srv.URL, "Stripe", "Inc", "--industry", "fintech", "-n", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "Companies similar to")
	assert.Contains(t, out, "Stripe Inc")
	assert.Contains(t, out, "Adyen")
	assert.Contains(t, out, "adyen.com")
	assert.Contains(t, out, "0.82")
	assert.Contains(t, out, "mcp_tavily: timeout")

	var req thttp.DiscoverRequest
	require.NoError(t, json.Unmarshal(srv.body(), &req))
	assert.Equal(t, "Stripe Inc", req.CompanyName)
	assert.Equal(t, 5, req.MaxResults)
	assert.Equal(t, "fintech", req.IndustryFilter)
	assert.Nil(t, req.MinSimilarityScore)
	assert.Nil(t, req.IncludeWebDiscovery)
}

func TestDiscoverCmd_Flags(t *testing.T) {
	srv := newFakeServer(t)

	_, err := run(t, nil, "discover", "--server", srv.URL, "Stripe",
		"--min-score", "0.4", "--no-web", "--no-database", "--sequential", "--size", "startup")
	require.NoError(t, err)

	var req thttp.DiscoverRequest
	require.NoError(t, json.Unmarshal(srv.body(), &req))
	require.NotNil(t, req.MinSimilarityScore)
	assert.InDelta(t, 0.4, *req.MinSimilarityScore, 1e-9)
	require.NotNil(t, req.IncludeWebDiscovery)
	assert.False(t, *req.IncludeWebDiscovery)
	require.NotNil(t, req.IncludeDatabaseSearch)
	assert.False(t, *req.IncludeDatabaseSearch)
	require.NotNil(t, req.EnableParallelSearch)
	assert.False(t, *req.EnableParallelSearch)
	assert.Equal(t, "startup", req.SizeFilter)
}

func TestDiscoverCmd_JSON(t *testing.T) {
	srv := newFakeServer(t)

	out, err := run(t, nil, "discover", "--server", srv.URL, "--json", "Stripe")
	require.NoError(t, err)

	var result discovery.DiscoveryResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Stripe", result.QueryCompany)
	assert.Equal(t, discovery.StrategyHybrid, result.SearchStrategy)
}

func TestDiscoverCmd_RequiresName(t *testing.T) {
	_, err := run(t, nil, "discover")
	require.Error(t, err)
}

func TestDiscoverCmd_ServerDown(t *testing.T) {
	_, err := run(t, nil, "discover", "--server", "http://127.0.0.1:1", "--timeout", "200ms", "Stripe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery failed")
}

func TestBackendsCmd(t *testing.T) {
	srv := newFakeServer(t)

	out, err := run(t, nil, "backends", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "mcp_perplexity")
	assert.Contains(t, out, "unhealthy")
	assert.Contains(t, out, "rate limited")

	out, err = run(t, nil, "backends", "--server", srv.URL, "--json")
	require.NoError(t, err)
	var resp thttp.BackendsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"mcp_perplexity"}, resp.Available)
}

func TestCheckCmd(t *testing.T) {
	srv := newFakeServer(t)

	out, err := run(t, nil, "check", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Recovered:")
	assert.Contains(t, out, "mcp_tavily")
}

func TestStatusCmd(t *testing.T) {
	srv := newFakeServer(t)

	out, err := run(t, nil, "status", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0")
	assert.Contains(t, out, "1/2 healthy")
	assert.Contains(t, out, "Companies: n/a")
}

func TestIndexCmd_Stdin(t *testing.T) {
	srv := newFakeServer(t)

	in := strings.NewReader(`[{"company_name":"Stripe","domain":"stripe.com"},{"company_name":"Adyen"}]`)
	out, err := run(t, in, "index", "--server", srv.URL, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "2 companies")

	var req thttp.IndexRequest
	require.NoError(t, json.Unmarshal(srv.body(), &req))
	require.Len(t, req.Companies, 2)
	assert.Equal(t, "stripe.com", req.Companies[0].Domain)
}

func TestIndexCmd_File(t *testing.T) {
	srv := newFakeServer(t)

	path := filepath.Join(t.TempDir(), "companies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"companies":[{"company_name":"Klarna"}]}`), 0o600))

	out, err := run(t, nil, "index", "--server", srv.URL, path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 companies")
}

func TestParseCompanies(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{"array", `[{"company_name":"A"},{"company_name":"B"}]`, 2, ""},
		{"object", `{"companies":[{"company_name":"A"}]}`, 1, ""},
		{"empty input", "  \n", 0, "no companies"},
		{"empty array", `[]`, 0, "no companies"},
		{"invalid", `{not json`, 0, "parsing companies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCompanies([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDashboardCmd_RejectsShortInterval(t *testing.T) {
	_, err := run(t, nil, "dashboard", "--interval", "10ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1s")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "theoctl by Fyrsmith Labs")
	assert.Contains(t, out, "Version:    dev")
}

func TestPrintEvent(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ev   discovery.Event
		want []string
	}{
		{
			name: "completed",
			ev: discovery.Event{Type: discovery.EventDiscoveryCompleted, Timestamp: now,
				QueryCompany: "Stripe", SearchStrategy: "hybrid", TotalMatches: 7, DurationSecs: 1.5},
			want: []string{"10:00:00", "Stripe", "strategy=hybrid", "matches=7", "1.50s"},
		},
		{
			name: "failed",
			ev:   discovery.Event{Type: discovery.EventDiscoveryFailed, Timestamp: now, QueryCompany: "Stripe", Errors: []string{"a", "b"}},
			want: []string{"discovery failed", "2 errors"},
		},
		{
			name: "backend down",
			ev:   discovery.BackendEvent("mcp_tavily", false, assert.AnError),
			want: []string{"backend down", "mcp_tavily", assert.AnError.Error()},
		},
		{
			name: "backend up",
			ev:   discovery.BackendEvent("mcp_tavily", true, nil),
			want: []string{"backend up", "mcp_tavily"},
		},
		{
			name: "unknown",
			ev:   discovery.Event{Type: "custom", Timestamp: now},
			want: []string{"custom", "theodore.events.custom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printEvent(&buf, "theodore.events.custom", tt.ev)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestEventsWatchCmd(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	pub := events.NewPublisher(nc, "", nil)

	root := newRootCmd()
	out := &lockedBuffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"events", "watch", "--nats", server.ClientURL()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	ev := discovery.BackendEvent("mcp_perplexity", true, nil)
	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), ev)
		return strings.Contains(out.String(), "backend up")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, out.String(), "watching theodore.>")
	assert.Contains(t, out.String(), "mcp_perplexity")
}

func TestEventsWatchCmd_Unreachable(t *testing.T) {
	_, err := run(t, nil, "events", "watch", "--nats", "nats://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to nats")
}
