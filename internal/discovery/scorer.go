package discovery

import (
	"math"
	"strings"
	"time"
)

// Dimension weights for SimilarityScore. They sum to 1.0.
const (
	WeightIndustry      = 0.30
	WeightBusinessModel = 0.25
	WeightSize          = 0.20
	WeightLocation      = 0.15
	WeightDescription   = 0.10
)

// DefaultConfidence is used when the confidence factors cannot be combined.
const DefaultConfidence = 0.7

// noQueryRelevance is the relevance factor when no query is known.
const noQueryRelevance = 0.8

// minConfidenceFactor keeps a single zero factor from zeroing the geometric mean.
const minConfidenceFactor = 0.05

// sourceReliability is the static trust table for confidence scoring.
var sourceReliability = map[Source]float64{
	SourceVectorDatabase: 1.0,
	SourceManualResearch: 0.95,
	SourcePerplexity:     0.9,
	SourceTavily:         0.85,
	SourceSearchDroid:    0.8,
	SourceGoogleSearch:   0.7,
}

const unknownSourceReliability = 0.5

// SourceReliability returns the trust weight of a source.
func SourceReliability(s Source) float64 {
	if r, ok := sourceReliability[s]; ok {
		return r
	}
	return unknownSourceReliability
}

// SearchContext carries what the scorer knows about the search that produced
// a match.
type SearchContext struct {
	OriginalQuery string
}

// Scorer computes similarity and confidence scores from company attributes.
// It has no state beyond the clock and is safe for concurrent use.
type Scorer struct {
	// Clock returns the current time for freshness. Defaults to time.Now.
	Clock func() time.Time
}

// NewScorer returns a Scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{Clock: time.Now}
}

func (s *Scorer) now() time.Time {
	if s == nil || s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// SimilarityScore is the weighted multi-dimensional similarity of a and b.
//
// A dimension with data missing on either side is left out of the sum. The
// remaining weights are not renormalized, so incomplete data lowers the score.
func (s *Scorer) SimilarityScore(a, b CompanyMatch) float64 {
	total := 0.0

	if score, ok := industrySimilarity(a.Industry, b.Industry); ok {
		total += WeightIndustry * score
	}
	if score, ok := businessModelSimilarity(a.BusinessModel, b.BusinessModel); ok {
		total += WeightBusinessModel * score
	}
	if score, ok := sizeSimilarity(a.EmployeeCount, b.EmployeeCount); ok {
		total += WeightSize * score
	}
	if score, ok := locationSimilarity(a.Location, b.Location); ok {
		total += WeightLocation * score
	}
	if score, ok := descriptionSimilarity(a.Description, b.Description); ok {
		total += WeightDescription * score
	}

	return clamp01(total)
}

func industrySimilarity(a, b string) (float64, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}
	if strings.EqualFold(a, b) {
		return 1.0, true
	}
	if sameCluster(industryClusters, a, b) {
		return 0.8, true
	}
	return jaccard(tokenSet(a), tokenSet(b)) * 0.6, true
}

func businessModelSimilarity(a, b string) (float64, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}
	if strings.EqualFold(a, b) {
		return 1.0, true
	}
	if sameCluster(businessModelClusters, a, b) {
		return 0.8, true
	}
	return 0.2, true
}

func sizeSimilarity(a, b *int) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if *a <= 0 || *b <= 0 {
		return 0.5, true
	}
	diff := math.Abs(math.Log10(float64(*a)) - math.Log10(float64(*b)))
	return math.Max(0, 1-diff/3), true
}

func locationSimilarity(a, b string) (float64, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}
	if strings.EqualFold(a, b) {
		return 1.0, true
	}
	if sameCluster(regionClusters, a, b) {
		return 0.7, true
	}
	wa, wb := tokenSet(a), tokenSet(b)
	for w := range wa {
		if wb[w] {
			return 0.5, true
		}
	}
	return 0.1, true
}

func descriptionSimilarity(a, b string) (float64, bool) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, false
	}
	wa, wb := contentWords(a), contentWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0.5, true
	}
	return jaccard(wa, wb), true
}

// ConfidenceScore estimates how trustworthy m is, independent of how similar
// it is. It is the geometric mean of source reliability, data completeness,
// query relevance and freshness. If the factors cannot be combined the result
// is DefaultConfidence.
func (s *Scorer) ConfidenceScore(m CompanyMatch, sc SearchContext) (confidence float64) {
	defer func() {
		if r := recover(); r != nil {
			confidence = DefaultConfidence
		}
	}()

	factors := []float64{
		SourceReliability(m.Source),
		DataCompleteness(m),
		QueryRelevance(m, sc.OriginalQuery),
		s.FreshnessScore(m.DiscoveredAt),
	}

	product := 1.0
	for _, f := range factors {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return DefaultConfidence
		}
		product *= math.Max(f, minConfidenceFactor)
	}

	score := math.Pow(product, 1/float64(len(factors)))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return DefaultConfidence
	}
	return clamp01(score)
}

// DataCompleteness is the fraction of the six descriptive attributes present.
func DataCompleteness(m CompanyMatch) float64 {
	present := 0
	for _, v := range []string{m.Domain, m.Description, m.Industry, m.BusinessModel, m.Location} {
		if strings.TrimSpace(v) != "" {
			present++
		}
	}
	if m.EmployeeCount != nil {
		present++
	}
	return float64(present) / 6
}

// QueryRelevance scores how well a match's name and description cover the
// query tokens.
func QueryRelevance(m CompanyMatch, query string) float64 {
	if strings.TrimSpace(query) == "" {
		return noQueryRelevance
	}
	q := contentWords(query)
	if len(q) == 0 {
		return noQueryRelevance
	}
	name := overlap(q, tokenSet(m.CompanyName))
	desc := overlap(q, tokenSet(m.Description))
	return 0.7*name + 0.3*desc
}

// FreshnessScore buckets the age of t.
func (s *Scorer) FreshnessScore(t time.Time) float64 {
	if t.IsZero() {
		return 0.4
	}
	age := s.now().Sub(t)
	switch {
	case age < time.Hour:
		return 1.0
	case age < 24*time.Hour:
		return 0.9
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.6
	default:
		return 0.4
	}
}

// IndustryDiversity is distinct non-empty industries over the match count.
func IndustryDiversity(matches []CompanyMatch) float64 {
	return diversity(matches, func(m CompanyMatch) string { return m.Industry })
}

// BusinessModelDiversity is distinct non-empty business models over the match count.
func BusinessModelDiversity(matches []CompanyMatch) float64 {
	return diversity(matches, func(m CompanyMatch) string { return m.BusinessModel })
}

func diversity(matches []CompanyMatch, field func(CompanyMatch) string) float64 {
	if len(matches) == 0 {
		return 0
	}
	distinct := make(map[string]bool)
	for _, m := range matches {
		if v := strings.ToLower(strings.TrimSpace(field(m))); v != "" {
			distinct[v] = true
		}
	}
	return float64(len(distinct)) / float64(len(matches))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
