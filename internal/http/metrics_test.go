package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

func newTestHTTPMetrics(t *testing.T) (*HTTPMetrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return newHTTPMetrics(mp.Meter(httpInstrumentationName), nil), reader
}

// sumBy totals an int64 counter grouped by the given attribute.
func sumBy(t *testing.T, reader *metric.ManualReader, name, key string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			out := map[string]int64{}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.Emit()] += dp.Value
			}
			return out
		}
	}
	return nil
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/companies", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "vector store not configured")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/companies", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	assert.Equal(t, map[string]int64{"2xx": 1, "5xx": 1, "4xx": 1},
		sumBy(t, reader, "theodore.http.requests_total", "status_class"))
	routes := sumBy(t, reader, "theodore.http.requests_total", "route")
	assert.Equal(t, int64(1), routes["/health"])
	assert.Equal(t, int64(1), routes["/api/v1/companies"])
}

func TestHTTPMetrics_RecordDiscover(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)
	ctx := context.Background()

	m.RecordDiscover(ctx, discovery.DiscoveryResult{SearchStrategy: discovery.StrategyHybrid})
	m.RecordDiscover(ctx, discovery.DiscoveryResult{
		SearchStrategy:    discovery.StrategyWebOnly,
		ErrorsEncountered: []string{"mcp_tavily: rate limited"},
	})
	m.RecordDiscover(ctx, discovery.DiscoveryResult{
		SearchStrategy:    discovery.StrategyFailed,
		ErrorsEncountered: []string{"invalid discovery request: company_name is required"},
	})

	assert.Equal(t, map[string]int64{
		discovery.StrategyHybrid:  1,
		discovery.StrategyWebOnly: 1,
		discovery.StrategyFailed:  1,
	}, sumBy(t, reader, "theodore.http.discover_requests_total", "search_strategy"))
	assert.Equal(t, map[string]int64{"true": 1, "false": 2},
		sumBy(t, reader, "theodore.http.discover_requests_total", "partial"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "4xx", statusClass(http.StatusBadRequest))
	assert.Equal(t, "unknown", statusClass(0))
}
