package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/logging"
)

var tracer = otel.Tracer("theodore/discovery")

const (
	// DefaultMaxConcurrency bounds concurrent backend searches.
	DefaultMaxConcurrency = 5

	// SequentialFallbackMaxTools is how many backends sequential search tries.
	SequentialFallbackMaxTools = 3
)

// RawData keys set on every match returned by a backend.
const (
	RawDataSearchBackend    = "search_backend"
	RawDataBackendExecution = "backend_execution_seconds"
)

// ParallelResult holds the per-backend outcome of a web search.
type ParallelResult struct {
	// Matches has an entry only for backends that returned at least one match.
	Matches map[Source][]CompanyMatch

	// Timing is wall-clock seconds per backend that ran.
	Timing map[string]float64

	// Failures holds the error of every backend that failed or was cut off.
	Failures map[string]error
}

func newParallelResult() ParallelResult {
	return ParallelResult{
		Matches:  make(map[Source][]CompanyMatch),
		Timing:   make(map[string]float64),
		Failures: make(map[string]error),
	}
}

// Executor runs company searches across the registry's healthy backends.
type Executor struct {
	registry       *Registry
	queries        *QueryGenerator
	maxConcurrency int
	metrics        *Metrics
	logger         *zap.Logger
}

// NewExecutor creates an executor. maxConcurrency <= 0 uses DefaultMaxConcurrency.
func NewExecutor(registry *Registry, queries *QueryGenerator, maxConcurrency int, logger *zap.Logger) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queries == nil {
		queries = NewQueryGenerator(logger)
	}
	return &Executor{
		registry:       registry,
		queries:        queries,
		maxConcurrency: maxConcurrency,
		metrics:        NewMetrics(),
		logger:         logger,
	}
}

// MaxConcurrency returns the concurrency bound.
func (e *Executor) MaxConcurrency() int {
	return e.maxConcurrency
}

type backendOutcome struct {
	name    string
	matches []CompanyMatch
	err     error
	seconds float64
}

// Search queries every available backend concurrently.
//
// A failing backend is marked unhealthy and contributes nothing. Context
// cancellation is recorded as a failure without touching backend health.
func (e *Executor) Search(ctx context.Context, companyName string, req DiscoveryRequest) ParallelResult {
	ctx, span := tracer.Start(ctx, "discovery.parallel_search")
	defer span.End()

	names := e.registry.AvailableTools()
	span.SetAttributes(
		attribute.String("company", companyName),
		attribute.Int("backends.count", len(names)),
	)

	result := newParallelResult()
	if len(names) == 0 {
		return result
	}

	outcomes := make(chan backendOutcome, len(names))
	sem := make(chan struct{}, e.maxConcurrency)
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes <- backendOutcome{name: name, err: ctx.Err()}
				return
			}

			outcomes <- e.run(ctx, name, companyName, req)
		}(name)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		e.collect(ctx, &result, o)
	}

	span.SetAttributes(
		attribute.Int("backends.succeeded", len(result.Matches)),
		attribute.Int("backends.failed", len(result.Failures)),
	)
	return result
}

// SearchSequential queries at most SequentialFallbackMaxTools backends one
// after another, in AvailableTools order.
func (e *Executor) SearchSequential(ctx context.Context, companyName string, req DiscoveryRequest) ParallelResult {
	ctx, span := tracer.Start(ctx, "discovery.sequential_search")
	defer span.End()

	names := e.registry.AvailableTools()
	if len(names) > SequentialFallbackMaxTools {
		names = names[:SequentialFallbackMaxTools]
	}
	span.SetAttributes(
		attribute.String("company", companyName),
		attribute.Int("backends.count", len(names)),
	)

	result := newParallelResult()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			result.Failures[name] = err
			continue
		}
		e.collect(ctx, &result, e.run(ctx, name, companyName, req))
	}
	return result
}

func (e *Executor) collect(ctx context.Context, result *ParallelResult, o backendOutcome) {
	if o.seconds > 0 || o.err == nil {
		result.Timing[o.name] = o.seconds
	}
	if o.err != nil {
		result.Failures[o.name] = o.err
		e.recordFailure(ctx, o.name, o.err)
		return
	}
	if len(o.matches) > 0 {
		result.Matches[Source(o.name)] = o.matches
	}
}

// recordFailure marks the backend unhealthy unless the error came from the
// caller's context.
func (e *Executor) recordFailure(ctx context.Context, name string, err error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logging.Ctx(ctx, e.logger).Debug("backend search cut off",
			zap.String("backend", name),
			zap.Error(err))
		return
	}
	e.metrics.RecordBackendFailure(name)
	if markErr := e.registry.MarkUnhealthy(name, err); markErr != nil {
		e.logger.Debug("failed to mark backend unhealthy",
			zap.String("backend", name),
			zap.Error(markErr))
	}
}

// run executes all queries for one backend.
func (e *Executor) run(ctx context.Context, name, companyName string, req DiscoveryRequest) backendOutcome {
	backend, ok := e.registry.Backend(name)
	if !ok {
		return backendOutcome{name: name, err: fmt.Errorf("%w: %s", ErrBackendNotFound, name)}
	}

	ctx, span := tracer.Start(ctx, "discovery.backend_search")
	defer span.End()
	span.SetAttributes(attribute.String("backend", name))

	start := time.Now()
	matches, err := e.searchBackend(ctx, backend, name, companyName, req)
	elapsed := time.Since(start).Seconds()
	e.metrics.RecordBackendSearch(name, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Ctx(ctx, e.logger).Warn("backend search failed",
			zap.String("backend", name),
			zap.Float64("seconds", elapsed),
			zap.Error(err))
		return backendOutcome{name: name, err: err, seconds: elapsed}
	}

	for i := range matches {
		matches[i].RawData[RawDataBackendExecution] = elapsed
	}
	span.SetAttributes(attribute.Int("results.count", len(matches)))
	logging.Ctx(ctx, e.logger).Debug("backend search completed",
		zap.String("backend", name),
		zap.Int("matches", len(matches)),
		zap.Float64("seconds", elapsed))

	return backendOutcome{name: name, matches: matches, seconds: elapsed}
}

// searchBackend runs the generated queries against one backend and dedupes
// the matches by normalized name. A panic in the backend becomes an error.
func (e *Executor) searchBackend(ctx context.Context, backend SearchBackend, name, companyName string, req DiscoveryRequest) (out []CompanyMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %s: %v", ErrBackendPanic, name, r)
		}
	}()

	queries := e.queries.Generate(companyName, name, QueryContext{
		Industry: req.IndustryFilter,
		Location: req.LocationFilter,
	})

	seen := make(map[string]bool)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := backend.Search(ctx, q, req)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q, err)
		}

		for _, m := range found {
			if m.Validate() != nil {
				continue
			}
			key := m.NormalizedName()
			if seen[key] {
				continue
			}
			seen[key] = true

			m = m.clone()
			if m.Source == "" {
				m.Source = Source(name)
			}
			if m.SearchQueryUsed == "" {
				m.SearchQueryUsed = q
			}
			if m.RawData == nil {
				m.RawData = make(map[string]any)
			}
			if m.DiscoveredAt.IsZero() {
				m.DiscoveredAt = timeNow()
			}
			m.RawData[RawDataSearchBackend] = name
			out = append(out, m)
		}
	}
	return out, nil
}
