package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/theodore/internal/http"

// unmatchedRoute labels requests echo routed to no handler.
const unmatchedRoute = "unmatched"

// HTTPMetrics records API traffic and discover outcomes.
//
// Metrics:
//   - theodore.http.requests_total{method, route, status_class}
//   - theodore.http.request_duration_seconds{method, route}
//   - theodore.http.discover_requests_total{search_strategy, partial}
type HTTPMetrics struct {
	logger    *zap.Logger
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	discovers metric.Int64Counter
}

// NewHTTPMetrics creates API metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{logger: logger}

	var err error
	m.requests, err = meter.Int64Counter(
		"theodore.http.requests_total",
		metric.WithDescription("API requests by method, route pattern and status class (2xx, 4xx, 5xx)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"theodore.http.request_duration_seconds",
		metric.WithDescription("API request duration in seconds by method and route pattern"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.discovers, err = meter.Int64Counter(
		"theodore.http.discover_requests_total",
		metric.WithDescription("Discover calls by resulting search strategy; partial marks results that recorded errors"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create discover counter", zap.Error(err))
	}
	return m
}

// MetricsMiddleware returns an echo middleware recording request metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			ctx := req.Context()
			base := []attribute.KeyValue{
				attribute.String("method", req.Method),
				attribute.String("route", route),
			}

			if m.requests != nil {
				attrs := append(base, attribute.String("status_class", statusClass(responseStatus(c, err))))
				m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(base...))
			}
			return err
		}
	}
}

// RecordDiscover counts one discover response.
func (m *HTTPMetrics) RecordDiscover(ctx context.Context, result discovery.DiscoveryResult) {
	if m.discovers == nil {
		return
	}
	partial := !result.Failed() && len(result.ErrorsEncountered) > 0
	m.discovers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("search_strategy", result.SearchStrategy),
		attribute.Bool("partial", partial),
	))
}

// responseStatus resolves the status a request will end with. Handler errors
// are written by echo's error handler after the middleware chain returns, so
// the response does not carry their status yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
