package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, opts Options, backends ...SearchBackend) (*Orchestrator, *Registry) {
	t.Helper()
	exec, reg := newTestExecutor(t, 0, backends...)
	o := NewOrchestrator(exec, opts)
	o.newID = func() string { return "test-discovery" }
	return o, reg
}

func assertRanked(t *testing.T, matches []CompanyMatch) {
	t.Helper()
	for i := 0; i+1 < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i].rankKey(), matches[i+1].rankKey(),
			"match %d (%s) ranked above %d (%s)", i, matches[i].CompanyName, i+1, matches[i+1].CompanyName)
	}
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	openAI := match("OpenAI", "", 0.95)
	openAI.Industry = "Artificial Intelligence"
	openAI.Description = "AI research lab"

	store := &stubStore{matches: []CompanyMatch{openAI}}
	perplexity := &mockBackend{name: string(SourcePerplexity), matches: []CompanyMatch{match("Cohere", "", 0.9)}}
	tavily := &mockBackend{name: string(SourceTavily), matches: []CompanyMatch{match("Mistral AI", "", 0.9)}}

	o, _ := newTestOrchestrator(t, Options{VectorStore: store}, perplexity, tavily)

	req := NewDiscoveryRequest("Anthropic")
	req.MaxResults = 10
	req.MinSimilarityScore = 0.1

	res := o.Execute(context.Background(), req)

	require.Empty(t, res.ErrorsEncountered)
	assert.Equal(t, "test-discovery", res.DiscoveryID)
	assert.Equal(t, "Anthropic", res.QueryCompany)
	assert.Equal(t, StrategyHybrid, res.SearchStrategy)
	assert.LessOrEqual(t, res.TotalMatches, 4)
	assert.Equal(t, 3, res.TotalMatches)
	assert.GreaterOrEqual(t, res.TotalSourcesUsed, 2)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "OpenAI", res.Matches[0].CompanyName)
	assert.Equal(t, SourceVectorDatabase, res.Matches[0].Source)
	assertRanked(t, res.Matches)

	for _, m := range res.Matches {
		assert.Equal(t, map[Source]float64{m.Source: 1.0}, m.SourceAttribution)
	}

	assert.Contains(t, res.SourceTiming, string(SourceVectorDatabase))
	assert.Contains(t, res.SourceTiming, string(SourcePerplexity))
	assert.InDelta(t, 0.75, res.CoverageScore, 1e-9)
	assert.Greater(t, res.AverageConfidence, 0.0)
	assert.Equal(t, 1.0, res.FreshnessScore)

	// The store's records are not modified by scoring.
	assert.Equal(t, 0.95, store.matches[0].SimilarityScore)
	assert.Nil(t, store.matches[0].SourceAttribution)
}

func TestOrchestrator_ScoreAdjustments(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})
	o.scorer = &Scorer{Clock: time.Now}

	t.Run("vector database boost is capped", func(t *testing.T) {
		run := &discoveryRun{req: NewDiscoveryRequest("Stripe")}
		db := match("Adyen", SourceVectorDatabase, 0.95)
		db.Description = "Stripe alternative"
		db.CompanyName = "Stripe Payments"
		run.candidates = []CompanyMatch{db}

		ranked := o.scoreAndRank(run)
		require.Len(t, ranked, 1)
		require.GreaterOrEqual(t, ranked[0].ConfidenceScore, LowConfidenceThreshold)
		assert.Equal(t, 1.0, ranked[0].SimilarityScore)
	})

	t.Run("low confidence is penalized", func(t *testing.T) {
		run := &discoveryRun{req: NewDiscoveryRequest("Stripe")}
		bare := NewCompanyMatch("Acme", SourceGoogleSearch)
		bare.SimilarityScore = 0.5
		run.candidates = []CompanyMatch{bare}

		ranked := o.scoreAndRank(run)
		require.Len(t, ranked, 1)
		require.Less(t, ranked[0].ConfidenceScore, LowConfidenceThreshold)
		assert.InDelta(t, 0.4, ranked[0].SimilarityScore, 1e-9)
	})
}

func TestOrchestrator_TargetProfileScoresUnscoredMatches(t *testing.T) {
	target := CompanyMatch{
		CompanyName:   "anthropic ",
		Industry:      "Artificial Intelligence",
		BusinessModel: "B2B",
		EmployeeCount: IntPtr(500),
		Location:      "San Francisco",
		Description:   "AI safety research",
	}
	store := &stubStore{matches: []CompanyMatch{target}}

	cohere := target
	cohere.CompanyName = "Cohere"
	cohere.Domain = "cohere.com"
	cohere.DiscoveredAt = time.Now()
	backend := &mockBackend{name: string(SourcePerplexity), matches: []CompanyMatch{cohere}}

	o, _ := newTestOrchestrator(t, Options{VectorStore: store}, backend)
	res := o.Execute(context.Background(), NewDiscoveryRequest("Anthropic"))

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Cohere", res.Matches[0].CompanyName)
	// Identical profile (1.0) damped by the low-confidence penalty.
	assert.InDelta(t, LowConfidencePenalty, res.Matches[0].SimilarityScore, 1e-9)
	assert.Equal(t, StrategyWebOnly, res.SearchStrategy)
	assert.Equal(t, 1, res.TotalSourcesUsed)
}

func TestOrchestrator_UnscoredWebMatchWithoutTarget(t *testing.T) {
	backend := &mockBackend{name: string(SourceTavily), matches: []CompanyMatch{{CompanyName: "Adyen"}}}
	o, _ := newTestOrchestrator(t, Options{}, backend)

	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	require.Len(t, res.Matches, 1)
	assert.InDelta(t, DefaultWebSimilarity*LowConfidencePenalty, res.Matches[0].SimilarityScore, 1e-9)
}

func TestOrchestrator_CrossSourceDuplicatesKeepBestRanked(t *testing.T) {
	db := match("Adyen", "", 0.7)
	store := &stubStore{matches: []CompanyMatch{db}}
	web := &mockBackend{name: string(SourceGoogleSearch), matches: []CompanyMatch{
		{CompanyName: "ADYEN", SimilarityScore: 0.3},
		{CompanyName: "Stripe"},
	}}

	o, _ := newTestOrchestrator(t, Options{VectorStore: store}, web)
	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Adyen", res.Matches[0].CompanyName)
	assert.Equal(t, SourceVectorDatabase, res.Matches[0].Source)
}

func TestOrchestrator_NeverFails(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	fallback := &stubFallback{err: errors.New("quota exceeded")}
	backends := []SearchBackend{
		&mockBackend{name: "a", err: errors.New("timeout")},
		&mockBackend{name: "b", panics: "boom"},
	}

	o, reg := newTestOrchestrator(t, Options{VectorStore: store, Fallback: fallback}, backends...)

	var res DiscoveryResult
	require.NotPanics(t, func() {
		res = o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	})

	assert.Empty(t, res.Matches)
	assert.Equal(t, 0, res.TotalMatches)
	assert.Equal(t, 0.0, res.AverageConfidence)
	assert.Equal(t, 0.0, res.CoverageScore)
	assert.Equal(t, 0.0, res.FreshnessScore)
	assert.Equal(t, 0.0, res.IndustryDiversity)
	assert.Equal(t, 0.0, res.BusinessModelDiversity)
	assert.Equal(t, StrategyNone, res.SearchStrategy)
	assert.Len(t, res.ErrorsEncountered, 4)

	joined := strings.Join(res.ErrorsEncountered, "\n")
	assert.Contains(t, joined, "database search failed: connection refused")
	assert.Contains(t, joined, "a unavailable: ")
	assert.Contains(t, joined, "b unavailable: ")
	assert.Contains(t, joined, "fallback search failed: quota exceeded")
	assert.Empty(t, reg.AvailableTools())
}

func TestOrchestrator_StorePanicIsRecorded(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{VectorStore: &stubStore{panics: "nil pointer"}})

	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	require.Len(t, res.ErrorsEncountered, 1)
	assert.Contains(t, res.ErrorsEncountered[0], "vector store panicked")
	assert.False(t, res.Failed())
}

func TestOrchestrator_PanicBecomesFailedResult(t *testing.T) {
	store := &stubStore{matches: []CompanyMatch{match("Adyen", "", 0.9)}}
	o, _ := newTestOrchestrator(t, Options{VectorStore: store})
	o.scorer = &Scorer{Clock: func() time.Time { panic("clock unavailable") }}

	var res DiscoveryResult
	require.NotPanics(t, func() {
		res = o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	})

	assert.True(t, res.Failed())
	assert.Equal(t, StrategyFailed, res.SearchStrategy)
	assert.Empty(t, res.Matches)
	assert.NotNil(t, res.Matches)
	assert.Equal(t, 0.0, res.AverageConfidence)
	require.NotEmpty(t, res.ErrorsEncountered)
	assert.Contains(t, res.ErrorsEncountered[len(res.ErrorsEncountered)-1], "clock unavailable")
}

func TestOrchestrator_InvalidRequest(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})

	tests := []struct {
		name string
		req  DiscoveryRequest
		want string
	}{
		{"empty name", NewDiscoveryRequest("  "), "company_name"},
		{"too many results", DiscoveryRequest{CompanyName: "x", MaxResults: 500}, "max_results"},
		{"bad min score", DiscoveryRequest{CompanyName: "x", MinSimilarityScore: 1.5}, "min_similarity_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := o.Execute(context.Background(), tt.req)
			assert.True(t, res.Failed())
			require.Len(t, res.ErrorsEncountered, 1)
			assert.Contains(t, res.ErrorsEncountered[0], tt.want)
		})
	}
}

func TestOrchestrator_RankingAndLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var found []CompanyMatch
	for i := 0; i < 20; i++ {
		found = append(found, match(fmt.Sprintf("Company %02d", i), "", 0.2+0.8*rng.Float64()))
	}
	backend := &mockBackend{name: string(SourceTavily), matches: found}

	t.Run("all ranked", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, Options{}, backend)
		req := NewDiscoveryRequest("Stripe")
		res := o.Execute(context.Background(), req)
		require.Len(t, res.Matches, 20)
		assertRanked(t, res.Matches)
	})

	t.Run("limited to the best five", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, Options{}, backend)
		all := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))

		req := NewDiscoveryRequest("Stripe")
		req.MaxResults = 5
		res := o.Execute(context.Background(), req)

		require.Len(t, res.Matches, 5)
		assert.Equal(t, names(all.Matches[:5]), names(res.Matches))
	})
}

func TestOrchestrator_StableOrderForTies(t *testing.T) {
	var found []CompanyMatch
	for _, n := range []string{"Zeta", "Alpha", "Mid"} {
		found = append(found, match(n, "", 0.7))
	}
	backend := &mockBackend{name: string(SourceTavily), matches: found}
	o, _ := newTestOrchestrator(t, Options{}, backend)

	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, names(res.Matches))
}

func TestOrchestrator_Fallback(t *testing.T) {
	var extra []CompanyMatch
	for i := 0; i < 7; i++ {
		extra = append(extra, CompanyMatch{CompanyName: fmt.Sprintf("Fallback %d", i)})
	}
	fallback := &stubFallback{matches: extra}
	backend := &mockBackend{name: string(SourceTavily), matches: []CompanyMatch{match("Adyen", "", 0.9)}}

	o, _ := newTestOrchestrator(t, Options{Fallback: fallback}, backend)
	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))

	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, 1+FallbackMaxResults, res.TotalMatches)
	assert.Equal(t, StrategyHybrid, res.SearchStrategy)
	assert.Equal(t, 2, res.TotalSourcesUsed)

	for _, m := range res.Matches {
		if strings.HasPrefix(m.CompanyName, "Fallback") {
			assert.Equal(t, SourceGoogleSearch, m.Source)
			assert.InDelta(t, FallbackSimilarity*LowConfidencePenalty, m.SimilarityScore, 1e-9)
		}
	}
}

func TestOrchestrator_FallbackSkippedWithEnoughMatches(t *testing.T) {
	var found []CompanyMatch
	for i := 0; i < FallbackThreshold; i++ {
		found = append(found, match(fmt.Sprintf("Company %d", i), "", 0.8))
	}
	fallback := &stubFallback{}
	backend := &mockBackend{name: string(SourceTavily), matches: found}

	o, _ := newTestOrchestrator(t, Options{Fallback: fallback}, backend)
	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))

	assert.Zero(t, fallback.calls.Load())
	assert.Equal(t, StrategyWebOnly, res.SearchStrategy)
}

func TestOrchestrator_PhaseFlags(t *testing.T) {
	store := &stubStore{matches: []CompanyMatch{match("Adyen", "", 0.9)}}
	backend := &mockBackend{name: string(SourceTavily), matches: []CompanyMatch{match("Square", "", 0.9)}}
	o, _ := newTestOrchestrator(t, Options{VectorStore: store}, backend)

	req := NewDiscoveryRequest("Stripe")
	req.IncludeWebDiscovery = false
	res := o.Execute(context.Background(), req)
	assert.Equal(t, StrategyDatabaseOnly, res.SearchStrategy)
	assert.Zero(t, backend.calls.Load())

	req = NewDiscoveryRequest("Stripe")
	req.IncludeDatabaseSearch = false
	req.EnableParallelSearch = false
	res = o.Execute(context.Background(), req)
	assert.Equal(t, StrategyWebOnly, res.SearchStrategy)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestOrchestrator_Timeout(t *testing.T) {
	o, reg := newTestOrchestrator(t, Options{Timeout: 30 * time.Millisecond},
		blockingBackend{name: "slow"},
		&mockBackend{name: "fast", matches: []CompanyMatch{match("Adyen", "", 0.9)}},
	)

	res := o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))

	assert.Equal(t, []string{"Adyen"}, names(res.Matches))
	joined := strings.Join(res.ErrorsEncountered, "\n")
	assert.Contains(t, joined, "slow unavailable")
	assert.Contains(t, joined, "deadline exceeded")
	assert.Equal(t, []string{"fast", "slow"}, reg.AvailableTools())
}

func TestOrchestrator_PublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	backend := &mockBackend{name: string(SourceTavily), matches: []CompanyMatch{match("Adyen", "", 0.9)}}
	o, _ := newTestOrchestrator(t, Options{Publisher: pub}, backend)

	o.Execute(context.Background(), NewDiscoveryRequest("Stripe"))
	o.Execute(context.Background(), NewDiscoveryRequest(""))

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventDiscoveryCompleted, events[0].Type)
	assert.Equal(t, "test-discovery", events[0].DiscoveryID)
	assert.Equal(t, 1, events[0].TotalMatches)
	assert.Equal(t, EventDiscoveryFailed, events[1].Type)
	assert.NotEmpty(t, events[1].Errors)
}

func TestOrchestrator_FiltersApplied(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})
	req := NewDiscoveryRequest("Stripe")
	req.IndustryFilter = "fintech"

	res := o.Execute(context.Background(), req)
	assert.Equal(t, "fintech", res.FiltersApplied["industry_filter"])
	assert.Equal(t, StrategyNone, res.SearchStrategy)
	assert.NotNil(t, res.ErrorsEncountered)
}
