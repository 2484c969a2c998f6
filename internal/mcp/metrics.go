package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/embeddings"
	"github.com/fyrsmithlabs/theodore/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/theodore/internal/mcp"

// ErrNotConfigured is returned by tools whose dependency was not wired.
var ErrNotConfigured = errors.New("not configured")

// Metrics records tool calls and the discoveries they run.
//
// Metrics:
//   - theodore.mcp.tool.calls_total{tool, outcome}
//   - theodore.mcp.tool.duration_seconds{tool}
//   - theodore.mcp.tool.errors_total{tool, reason}
//   - theodore.mcp.discover.matches{search_strategy}
type Metrics struct {
	logger   *zap.Logger
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	matches  metric.Int64Histogram
}

// NewMetrics creates tool metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{logger: logger}

	var err error
	m.calls, err = meter.Int64Counter(
		"theodore.mcp.tool.calls_total",
		metric.WithDescription("MCP tool calls by tool and outcome (ok, error)"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create tool calls counter", zap.Error(err))
	}

	// Discovery fans out to web backends, so the buckets reach past the
	// default 60s orchestrator timeout.
	m.duration, err = meter.Float64Histogram(
		"theodore.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create tool duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"theodore.mcp.tool.errors_total",
		metric.WithDescription("MCP tool errors by tool and reason"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create tool errors counter", zap.Error(err))
	}

	m.matches, err = meter.Int64Histogram(
		"theodore.mcp.discover.matches",
		metric.WithDescription("Matches returned by discover_similar_companies, by search strategy"),
		metric.WithUnit("{match}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100, 200),
	)
	if err != nil {
		logger.Warn("failed to create discover matches histogram", zap.Error(err))
	}
	return m
}

// RecordCall records one tool call.
func (m *Metrics) RecordCall(ctx context.Context, tool string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if m.calls != nil {
		m.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome),
		))
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("reason", categorizeError(err)),
		))
	}
}

// RecordDiscovery records the size and strategy of a discover result.
func (m *Metrics) RecordDiscovery(ctx context.Context, result discovery.DiscoveryResult) {
	if m.matches == nil {
		return
	}
	m.matches.Record(ctx, int64(result.TotalMatches), metric.WithAttributes(
		attribute.String("search_strategy", result.SearchStrategy),
	))
}

// categorizeError maps a tool error to a low-cardinality reason.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, discovery.ErrInvalidRequest),
		errors.Is(err, discovery.ErrInvalidMatch):
		return "validation_error"
	case errors.Is(err, discovery.ErrBackendNotFound):
		return "not_found"
	case errors.Is(err, ErrNotConfigured):
		return "unavailable"
	case errors.Is(err, vectorstore.ErrConnectionFailed),
		errors.Is(err, vectorstore.ErrCollectionNotFound),
		errors.Is(err, vectorstore.ErrEmbeddingFailed),
		errors.Is(err, embeddings.ErrEmbeddingFailed):
		return "storage_error"
	default:
		return "internal_error"
	}
}
