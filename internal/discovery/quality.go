package discovery

// coverageSources is the fixed denominator of the coverage score: the vector
// database plus three web backends.
const coverageSources = 4

type qualityScores struct {
	averageConfidence      float64
	coverage               float64
	freshness              float64
	industryDiversity      float64
	businessModelDiversity float64
}

// quality computes result-level scores over the final matches. All scores are
// zero for an empty list.
func (s *Scorer) quality(matches []CompanyMatch) qualityScores {
	if len(matches) == 0 {
		return qualityScores{}
	}

	var confidence, freshness float64
	sources := make(map[Source]bool)
	for _, m := range matches {
		confidence += m.ConfidenceScore
		freshness += s.FreshnessScore(m.DiscoveredAt)
		sources[m.Source] = true
	}
	n := float64(len(matches))

	return qualityScores{
		averageConfidence:      confidence / n,
		coverage:               clamp01(float64(len(sources)) / coverageSources),
		freshness:              freshness / n,
		industryDiversity:      IndustryDiversity(matches),
		businessModelDiversity: BusinessModelDiversity(matches),
	}
}
