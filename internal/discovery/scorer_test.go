package discovery

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorer_SimilarityScoreBounds(t *testing.T) {
	s := NewScorer()

	profiles := []CompanyMatch{
		{CompanyName: "empty"},
		{CompanyName: "a", Industry: "Software", BusinessModel: "B2B", EmployeeCount: IntPtr(1), Location: "Berlin", Description: "the and of"},
		{CompanyName: "b", Industry: "Retail", BusinessModel: "Marketplace", EmployeeCount: IntPtr(0), Location: "Tokyo, Japan", Description: "online marketplace for goods"},
		{CompanyName: "c", Industry: "FinTech Solutions", BusinessModel: "B2C", EmployeeCount: IntPtr(1_000_000), Location: "New York", Description: "payments for everyone"},
		{CompanyName: "d", Industry: "Healthcare", EmployeeCount: IntPtr(-5), Description: "   "},
	}

	for _, a := range profiles {
		for _, b := range profiles {
			sim := s.SimilarityScore(a, b)
			assert.GreaterOrEqual(t, sim, 0.0, "%s vs %s", a.CompanyName, b.CompanyName)
			assert.LessOrEqual(t, sim, 1.0, "%s vs %s", a.CompanyName, b.CompanyName)

			conf := s.ConfidenceScore(a, SearchContext{OriginalQuery: b.CompanyName})
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		}
	}
}

func TestScorer_MissingDimensionsScoreZero(t *testing.T) {
	s := NewScorer()

	a := CompanyMatch{CompanyName: "A", Industry: "Software", Location: "Berlin"}
	b := CompanyMatch{CompanyName: "B", BusinessModel: "B2B", EmployeeCount: IntPtr(40), Description: "robots"}

	assert.Equal(t, 0.0, s.SimilarityScore(a, b))
}

func TestScorer_IdenticalProfilesScoreOne(t *testing.T) {
	s := NewScorer()

	a := CompanyMatch{
		CompanyName:   "A",
		Industry:      "Artificial Intelligence",
		BusinessModel: "B2B",
		EmployeeCount: IntPtr(500),
		Location:      "San Francisco",
		Description:   "AI safety research company",
	}
	b := a
	b.CompanyName = "B"

	assert.InDelta(t, 1.0, s.SimilarityScore(a, b), 1e-9)
}

func TestScorer_Dimensions(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name string
		a, b CompanyMatch
		want float64
	}{
		{
			name: "industry exact ignores case",
			a:    CompanyMatch{Industry: "software"},
			b:    CompanyMatch{Industry: "Software"},
			want: WeightIndustry,
		},
		{
			name: "industry same cluster",
			a:    CompanyMatch{Industry: "Software"},
			b:    CompanyMatch{Industry: "Cloud Computing"},
			want: WeightIndustry * 0.8,
		},
		{
			name: "industry token overlap",
			a:    CompanyMatch{Industry: "Consumer Goods Manufacturing"},
			b:    CompanyMatch{Industry: "Industrial Manufacturing"},
			want: WeightIndustry * 0.25 * 0.6,
		},
		{
			name: "business model same cluster",
			a:    CompanyMatch{BusinessModel: "B2B"},
			b:    CompanyMatch{BusinessModel: "Enterprise SaaS"},
			want: WeightBusinessModel * 0.8,
		},
		{
			name: "business model different",
			a:    CompanyMatch{BusinessModel: "B2B"},
			b:    CompanyMatch{BusinessModel: "B2C"},
			want: WeightBusinessModel * 0.2,
		},
		{
			name: "size one order of magnitude apart",
			a:    CompanyMatch{EmployeeCount: IntPtr(100)},
			b:    CompanyMatch{EmployeeCount: IntPtr(1000)},
			want: WeightSize * (2.0 / 3.0),
		},
		{
			name: "size non-positive count",
			a:    CompanyMatch{EmployeeCount: IntPtr(0)},
			b:    CompanyMatch{EmployeeCount: IntPtr(100)},
			want: WeightSize * 0.5,
		},
		{
			name: "size far apart floors at zero",
			a:    CompanyMatch{EmployeeCount: IntPtr(10)},
			b:    CompanyMatch{EmployeeCount: IntPtr(100_000)},
			want: 0,
		},
		{
			name: "location same region",
			a:    CompanyMatch{Location: "San Francisco, CA"},
			b:    CompanyMatch{Location: "New York"},
			want: WeightLocation * 0.7,
		},
		{
			name: "location ca is not a us region",
			a:    CompanyMatch{Location: "Toronto, CA"},
			b:    CompanyMatch{Location: "New York"},
			want: WeightLocation * 0.1,
		},
		{
			name: "location ca only shares a word",
			a:    CompanyMatch{Location: "Toronto, CA"},
			b:    CompanyMatch{Location: "San Francisco, CA"},
			want: WeightLocation * 0.5,
		},
		{
			name: "location shared word",
			a:    CompanyMatch{Location: "Springfield, Illinois"},
			b:    CompanyMatch{Location: "Springfield, Missouri"},
			want: WeightLocation * 0.5,
		},
		{
			name: "location unrelated",
			a:    CompanyMatch{Location: "Lagos"},
			b:    CompanyMatch{Location: "Nairobi"},
			want: WeightLocation * 0.1,
		},
		{
			name: "description only stop words",
			a:    CompanyMatch{Description: "the and of"},
			b:    CompanyMatch{Description: "robotics platform"},
			want: WeightDescription * 0.5,
		},
		{
			name: "description jaccard",
			a:    CompanyMatch{Description: "the robotics platform"},
			b:    CompanyMatch{Description: "a robotics company"},
			want: WeightDescription * (1.0 / 3.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.SimilarityScore(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScorer_ConfidenceScore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Scorer{Clock: fixedClock(now)}

	full := CompanyMatch{
		CompanyName:   "Anthropic",
		Domain:        "anthropic.com",
		Description:   "Anthropic builds reliable AI systems",
		Industry:      "AI",
		BusinessModel: "B2B",
		EmployeeCount: IntPtr(1000),
		Location:      "San Francisco",
		Source:        SourceVectorDatabase,
		DiscoveredAt:  now,
	}

	t.Run("no query uses default relevance", func(t *testing.T) {
		assert.InDelta(t, math.Pow(noQueryRelevance, 0.25), s.ConfidenceScore(full, SearchContext{}), 1e-9)
	})

	t.Run("all factors maximal", func(t *testing.T) {
		assert.InDelta(t, 1.0, s.ConfidenceScore(full, SearchContext{OriginalQuery: "anthropic"}), 1e-9)
	})

	t.Run("zero factors are floored", func(t *testing.T) {
		sparse := CompanyMatch{CompanyName: "Acme", Source: "carrier_pigeon"}
		got := s.ConfidenceScore(sparse, SearchContext{OriginalQuery: "Stripe"})
		want := math.Pow(unknownSourceReliability*minConfidenceFactor*minConfidenceFactor*0.4, 0.25)
		assert.InDelta(t, want, got, 1e-9)
		assert.Greater(t, got, 0.0)
	})

	t.Run("panicking clock falls back to default", func(t *testing.T) {
		broken := &Scorer{Clock: func() time.Time { panic("clock") }}
		assert.Equal(t, DefaultConfidence, broken.ConfidenceScore(full, SearchContext{}))
	})
}

func TestScorer_SourceReliability(t *testing.T) {
	assert.Equal(t, 1.0, SourceReliability(SourceVectorDatabase))
	assert.Equal(t, 0.95, SourceReliability(SourceManualResearch))
	assert.Equal(t, 0.9, SourceReliability(SourcePerplexity))
	assert.Equal(t, 0.85, SourceReliability(SourceTavily))
	assert.Equal(t, 0.8, SourceReliability(SourceSearchDroid))
	assert.Equal(t, 0.7, SourceReliability(SourceGoogleSearch))
	assert.Equal(t, 0.5, SourceReliability("unknown"))
}

func TestScorer_FreshnessScore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Scorer{Clock: fixedClock(now)}

	tests := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 1.0},
		{2 * time.Hour, 0.9},
		{48 * time.Hour, 0.8},
		{10 * 24 * time.Hour, 0.6},
		{60 * 24 * time.Hour, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.age.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, s.FreshnessScore(now.Add(-tt.age)))
		})
	}

	assert.Equal(t, 0.4, s.FreshnessScore(time.Time{}))
}

func TestQueryRelevance(t *testing.T) {
	m := CompanyMatch{CompanyName: "Acme Robotics", Description: "industrial robotics arms"}

	assert.Equal(t, noQueryRelevance, QueryRelevance(m, ""))
	assert.Equal(t, noQueryRelevance, QueryRelevance(m, "the"))
	assert.InDelta(t, 1.0, QueryRelevance(m, "robotics"), 1e-9)
	assert.InDelta(t, 0.5, QueryRelevance(m, "acme arms"), 1e-9)
}

func TestDataCompleteness(t *testing.T) {
	assert.Equal(t, 0.0, DataCompleteness(CompanyMatch{CompanyName: "x"}))
	assert.InDelta(t, 0.5, DataCompleteness(CompanyMatch{Domain: "x.com", Industry: "AI", EmployeeCount: IntPtr(0)}), 1e-9)
}

func TestDiversity(t *testing.T) {
	require.Equal(t, 0.0, IndustryDiversity(nil))
	require.Equal(t, 0.0, BusinessModelDiversity([]CompanyMatch{}))

	matches := []CompanyMatch{
		{Industry: "Software", BusinessModel: "B2B"},
		{Industry: "software", BusinessModel: "B2B"},
		{Industry: "Retail"},
		{},
	}
	assert.Equal(t, 0.5, IndustryDiversity(matches))
	assert.Equal(t, 0.25, BusinessModelDiversity(matches))
}
