package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/logging"
)

// Scoring and phase constants.
const (
	// DefaultDatabaseSimilarity is assigned to database matches without a score.
	DefaultDatabaseSimilarity = 0.88

	// DefaultWebSimilarity is assigned to unscored web matches when no target
	// profile is available to score them against.
	DefaultWebSimilarity = 0.6

	// FallbackThreshold triggers the fallback phase when fewer matches exist.
	FallbackThreshold = 5

	// FallbackMaxResults caps the matches taken from the fallback search.
	FallbackMaxResults = 5

	// FallbackSimilarity is assigned to fallback matches without a score.
	FallbackSimilarity = 0.5

	// VectorDatabaseBoost multiplies the similarity of database matches.
	VectorDatabaseBoost = 1.1

	// LowConfidenceThreshold and LowConfidencePenalty damp matches that are
	// similar on paper but poorly supported.
	LowConfidenceThreshold = 0.5
	LowConfidencePenalty   = 0.8

	// DefaultTimeout bounds one discovery operation.
	DefaultTimeout = 60 * time.Second

	eventPublishTimeout = 5 * time.Second
)

// Options configures an Orchestrator. Every collaborator is optional.
type Options struct {
	// VectorStore is searched in the database phase.
	VectorStore VectorStore

	// Fallback supplies extra matches when the other phases found too few.
	Fallback FallbackSearch

	// Publisher receives discovery completed/failed events.
	Publisher EventPublisher

	// Scorer defaults to NewScorer().
	Scorer *Scorer

	// Timeout bounds Execute. Zero uses DefaultTimeout; negative disables it.
	Timeout time.Duration

	Logger *zap.Logger
}

// Orchestrator runs the discovery phases for a request.
type Orchestrator struct {
	executor  *Executor
	store     VectorStore
	fallback  FallbackSearch
	publisher EventPublisher
	scorer    *Scorer
	timeout   time.Duration
	metrics   *Metrics
	logger    *zap.Logger

	newID func() string
}

// NewOrchestrator creates an orchestrator. A nil executor disables web discovery.
func NewOrchestrator(executor *Executor, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scorer == nil {
		opts.Scorer = NewScorer()
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		executor:  executor,
		store:     opts.VectorStore,
		fallback:  opts.Fallback,
		publisher: opts.Publisher,
		scorer:    opts.Scorer,
		timeout:   opts.Timeout,
		metrics:   NewMetrics(),
		logger:    opts.Logger,
		newID:     uuid.NewString,
	}
}

// discoveryRun is the mutable state of one Execute call.
type discoveryRun struct {
	id      string
	req     DiscoveryRequest
	started time.Time
	logger  *zap.Logger

	candidates []CompanyMatch
	target     *CompanyMatch
	timing     map[string]float64
	errs       []string

	dbMatches       int
	webMatches      int
	fallbackMatches int
	sourcesUsed     int
}

func (r *discoveryRun) recordError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.errs = append(r.errs, msg)
	r.logger.Warn("discovery phase error", zap.String("error", msg))
}

// Execute runs discovery for req. It never returns an error and never panics:
// failures are reported in DiscoveryResult.ErrorsEncountered and a total
// failure produces a result with SearchStrategy "failed".
func (o *Orchestrator) Execute(ctx context.Context, req DiscoveryRequest) (result DiscoveryResult) {
	run := &discoveryRun{
		id:      o.newID(),
		req:     req,
		started: time.Now(),
		timing:  make(map[string]float64),
	}
	ctx, span := tracer.Start(logging.WithDiscoveryID(ctx, run.id), "discovery.execute")
	defer span.End()

	run.logger = logging.Ctx(ctx, o.logger).With(zap.String("company", req.CompanyName))

	defer func() {
		if r := recover(); r != nil {
			run.logger.Error("discovery panicked", zap.Any("panic", r))
			result = failedResult(run.id, run.req, run.started, run.errs, fmt.Sprintf("discovery failed: %v", r))
			span.SetStatus(codes.Error, "discovery panicked")
		}
		o.finish(ctx, result, run.logger)
	}()

	run.req.ApplyDefaults()
	if err := run.req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failedResult(run.id, run.req, run.started, nil, err.Error())
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	run.logger.Info("discovery started",
		zap.Bool("database", run.req.IncludeDatabaseSearch),
		zap.Bool("web", run.req.IncludeWebDiscovery),
		zap.Bool("parallel", run.req.EnableParallelSearch))

	o.searchDatabase(ctx, run)
	o.discoverWeb(ctx, run)
	o.searchFallback(ctx, run)

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			run.recordError("discovery deadline exceeded: partial results returned")
		} else {
			run.recordError("discovery cancelled: %v", err)
		}
	}

	ranked := o.scoreAndRank(run)
	final := applyFilters(ranked, run.req)
	q := o.scorer.quality(final)

	span.SetAttributes(
		attribute.Int("matches.candidates", len(run.candidates)),
		attribute.Int("matches.final", len(final)),
		attribute.Int("errors.count", len(run.errs)),
	)

	errs := run.errs
	if errs == nil {
		errs = []string{}
	}

	return DiscoveryResult{
		DiscoveryID:            run.id,
		QueryCompany:           run.req.CompanyName,
		SearchStrategy:         run.strategy(),
		TotalSourcesUsed:       run.sourcesUsed,
		Matches:                final,
		TotalMatches:           len(final),
		ExecutionTimeSeconds:   time.Since(run.started).Seconds(),
		SourceTiming:           run.timing,
		AverageConfidence:      q.averageConfidence,
		CoverageScore:          q.coverage,
		FreshnessScore:         q.freshness,
		IndustryDiversity:      q.industryDiversity,
		BusinessModelDiversity: q.businessModelDiversity,
		FiltersApplied:         run.req.Filters(),
		ErrorsEncountered:      errs,
	}
}

// strategy names the phases that contributed matches.
func (r *discoveryRun) strategy() string {
	phases := 0
	for _, n := range []int{r.dbMatches, r.webMatches, r.fallbackMatches} {
		if n > 0 {
			phases++
		}
	}
	switch {
	case phases > 1:
		return StrategyHybrid
	case r.dbMatches > 0:
		return StrategyDatabaseOnly
	case r.webMatches > 0:
		return StrategyWebOnly
	case r.fallbackMatches > 0:
		return StrategyFallbackOnly
	default:
		return StrategyNone
	}
}

func (o *Orchestrator) searchDatabase(ctx context.Context, run *discoveryRun) {
	if !run.req.IncludeDatabaseSearch || o.store == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "discovery.database_search")
	defer span.End()

	start := time.Now()
	matches, err := o.callStore(ctx, run.req.CompanyName)
	run.timing[string(SourceVectorDatabase)] = time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.recordError("database search failed: %v", err)
		return
	}

	query := NormalizeName(run.req.CompanyName)
	added := 0
	for _, m := range matches {
		if m.Validate() != nil {
			continue
		}
		m = m.clone()
		m.Source = SourceVectorDatabase
		if m.NormalizedName() == query {
			if run.target == nil {
				t := m
				run.target = &t
			}
			continue
		}
		if m.SimilarityScore <= 0 {
			m.SimilarityScore = DefaultDatabaseSimilarity
		}
		run.candidates = append(run.candidates, m)
		added++
	}

	span.SetAttributes(attribute.Int("results.count", added))
	run.dbMatches = added
	if added > 0 {
		run.sourcesUsed++
	}
	run.logger.Debug("database search completed",
		zap.Int("matches", added),
		zap.Bool("target_profile", run.target != nil))
}

func (o *Orchestrator) callStore(ctx context.Context, name string) (matches []CompanyMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("vector store panicked: %v", r)
		}
	}()
	return o.store.SearchSimilarCompanies(ctx, name)
}

func (o *Orchestrator) discoverWeb(ctx context.Context, run *discoveryRun) {
	if !run.req.IncludeWebDiscovery || o.executor == nil {
		return
	}

	var pr ParallelResult
	if run.req.EnableParallelSearch {
		pr = o.executor.Search(ctx, run.req.CompanyName, run.req)
	} else {
		pr = o.executor.SearchSequential(ctx, run.req.CompanyName, run.req)
	}

	for name, secs := range pr.Timing {
		run.timing[name] = secs
	}

	failed := make([]string, 0, len(pr.Failures))
	for name := range pr.Failures {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		run.recordError("%s unavailable: %v", name, pr.Failures[name])
	}

	sources := make([]string, 0, len(pr.Matches))
	for src := range pr.Matches {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		matches := pr.Matches[Source(src)]
		run.candidates = append(run.candidates, matches...)
		run.webMatches += len(matches)
		run.sourcesUsed++
	}
}

func (o *Orchestrator) searchFallback(ctx context.Context, run *discoveryRun) {
	if o.fallback == nil || len(run.candidates) >= FallbackThreshold {
		return
	}
	if ctx.Err() != nil {
		return
	}

	ctx, span := tracer.Start(ctx, "discovery.fallback_search")
	defer span.End()

	start := time.Now()
	matches, err := o.callFallback(ctx, run.req.CompanyName)
	run.timing[string(SourceGoogleSearch)] = time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.recordError("fallback search failed: %v", err)
		return
	}

	added := 0
	for _, m := range matches {
		if added == FallbackMaxResults {
			break
		}
		if m.Validate() != nil {
			continue
		}
		m = m.clone()
		m.Source = SourceGoogleSearch
		if m.SimilarityScore <= 0 {
			m.SimilarityScore = FallbackSimilarity
		}
		run.candidates = append(run.candidates, m)
		added++
	}

	span.SetAttributes(attribute.Int("results.count", added))
	run.fallbackMatches = added
	if added > 0 {
		run.sourcesUsed++
	}
}

func (o *Orchestrator) callFallback(ctx context.Context, name string) (matches []CompanyMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("fallback search panicked: %v", r)
		}
	}()
	return o.fallback.Search(ctx, name)
}

// scoreAndRank scores copies of the candidates, sorts them by
// similarity × confidence and drops the query company and cross-source
// duplicates, keeping the best-ranked entry.
func (o *Orchestrator) scoreAndRank(run *discoveryRun) []CompanyMatch {
	sc := SearchContext{OriginalQuery: run.req.CompanyName}
	query := NormalizeName(run.req.CompanyName)

	scored := make([]CompanyMatch, 0, len(run.candidates))
	for _, c := range run.candidates {
		if c.NormalizedName() == query {
			continue
		}
		m := c.clone()
		if m.RawData == nil {
			m.RawData = make(map[string]any)
		}

		if m.SimilarityScore <= 0 {
			if run.target != nil {
				m.SimilarityScore = o.scorer.SimilarityScore(*run.target, m)
			} else {
				m.SimilarityScore = DefaultWebSimilarity
			}
		}

		m.ConfidenceScore = o.scorer.ConfidenceScore(m, sc)
		m.SourceAttribution = map[Source]float64{m.Source: 1.0}

		if m.Source == SourceVectorDatabase {
			m.SimilarityScore = m.SimilarityScore * VectorDatabaseBoost
		}
		if m.ConfidenceScore < LowConfidenceThreshold {
			m.SimilarityScore = m.SimilarityScore * LowConfidencePenalty
		}
		m.SimilarityScore = clamp01(m.SimilarityScore)
		m.ConfidenceScore = clamp01(m.ConfidenceScore)

		scored = append(scored, m)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].rankKey() > scored[j].rankKey()
	})

	seen := make(map[string]bool, len(scored))
	ranked := scored[:0]
	for _, m := range scored {
		key := m.NormalizedName()
		if seen[key] {
			continue
		}
		seen[key] = true
		ranked = append(ranked, m)
	}
	return ranked
}

// finish records metrics, logs the outcome and publishes the event.
func (o *Orchestrator) finish(ctx context.Context, result DiscoveryResult, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("discovery event publisher panicked", zap.Any("panic", r))
		}
	}()

	o.metrics.RecordDiscovery(result.SearchStrategy, result.ExecutionTimeSeconds, result.TotalMatches)

	fields := []zap.Field{
		zap.String("strategy", result.SearchStrategy),
		zap.Int("matches", result.TotalMatches),
		zap.Int("sources", result.TotalSourcesUsed),
		zap.Int("errors", len(result.ErrorsEncountered)),
		zap.Float64("seconds", result.ExecutionTimeSeconds),
	}
	if result.Failed() {
		logger.Warn("discovery failed", append(fields, zap.Strings("error_messages", result.ErrorsEncountered))...)
	} else {
		logger.Info("discovery completed", fields...)
	}

	if o.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := o.publisher.Publish(pubCtx, discoveryEvent(result)); err != nil {
		logger.Warn("failed to publish discovery event", zap.Error(err))
	}
}
