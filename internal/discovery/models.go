package discovery

import (
	"fmt"
	"strings"
	"time"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Source identifies the backend that produced a match.
type Source string

const (
	SourceVectorDatabase Source = "vector_database"
	SourcePerplexity     Source = "mcp_perplexity"
	SourceTavily         Source = "mcp_tavily"
	SourceSearchDroid    Source = "mcp_search_droid"
	SourceGoogleSearch   Source = "google_search"
	SourceManualResearch Source = "manual_research"
)

// Request defaults and bounds.
const (
	DefaultMaxResults         = 50
	MaxResultsLimit           = 200
	DefaultMinSimilarityScore = 0.1
)

// Search strategy labels reported on DiscoveryResult.
const (
	StrategyHybrid       = "hybrid"
	StrategyDatabaseOnly = "database_only"
	StrategyWebOnly      = "web_only"
	StrategyFallbackOnly = "fallback_only"
	StrategyNone         = "none"
	StrategyFailed       = "failed"
)

// CompanyMatch is one candidate company returned by one source.
//
// Matches are values. The orchestrator scores copies, and a match placed in a
// DiscoveryResult is not modified afterwards.
type CompanyMatch struct {
	CompanyName   string `json:"company_name"`
	Domain        string `json:"domain,omitempty"`
	Description   string `json:"description,omitempty"`
	Industry      string `json:"industry,omitempty"`
	BusinessModel string `json:"business_model,omitempty"`
	EmployeeCount *int   `json:"employee_count,omitempty"`
	Location      string `json:"location,omitempty"`

	SimilarityScore float64 `json:"similarity_score"`
	ConfidenceScore float64 `json:"confidence_score"`

	Source            Source             `json:"source"`
	SourceAttribution map[Source]float64 `json:"source_attribution,omitempty"`
	SearchQueryUsed   string             `json:"search_query_used,omitempty"`
	DiscoveredAt      time.Time          `json:"discovered_at"`
	RawData           map[string]any     `json:"raw_data,omitempty"`
}

// NewCompanyMatch returns a match for name discovered now.
func NewCompanyMatch(name string, source Source) CompanyMatch {
	return CompanyMatch{
		CompanyName:  name,
		Source:       source,
		DiscoveredAt: timeNow(),
		RawData:      map[string]any{},
	}
}

// Validate checks the match identity.
func (m CompanyMatch) Validate() error {
	if strings.TrimSpace(m.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidMatch)
	}
	if m.EmployeeCount != nil && *m.EmployeeCount < 0 {
		return fmt.Errorf("%w: employee count must be >= 0, got %d", ErrInvalidMatch, *m.EmployeeCount)
	}
	return nil
}

// NormalizedName is the key used for deduplication.
func (m CompanyMatch) NormalizedName() string {
	return NormalizeName(m.CompanyName)
}

// NormalizeName lowercases and trims a company name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// clone copies the match including its maps so the copy can be scored
// without touching the original.
func (m CompanyMatch) clone() CompanyMatch {
	out := m
	if m.EmployeeCount != nil {
		n := *m.EmployeeCount
		out.EmployeeCount = &n
	}
	if m.RawData != nil {
		out.RawData = make(map[string]any, len(m.RawData))
		for k, v := range m.RawData {
			out.RawData[k] = v
		}
	}
	if m.SourceAttribution != nil {
		out.SourceAttribution = make(map[Source]float64, len(m.SourceAttribution))
		for k, v := range m.SourceAttribution {
			out.SourceAttribution[k] = v
		}
	}
	return out
}

// rankKey is the ordering key for ranked results.
func (m CompanyMatch) rankKey() float64 {
	return m.SimilarityScore * m.ConfidenceScore
}

// IntPtr returns a pointer to n, for building matches with employee counts.
func IntPtr(n int) *int {
	return &n
}

// DiscoveryRequest configures one discovery operation.
type DiscoveryRequest struct {
	CompanyName string `json:"company_name"`

	MaxResults          int     `json:"max_results"`
	MinSimilarityScore  float64 `json:"min_similarity_score"`
	IndustryFilter      string  `json:"industry_filter,omitempty"`
	BusinessModelFilter string  `json:"business_model_filter,omitempty"`
	LocationFilter      string  `json:"location_filter,omitempty"`
	SizeFilter          string  `json:"size_filter,omitempty"`

	IncludeDatabaseSearch bool `json:"include_database_search"`
	IncludeWebDiscovery   bool `json:"include_web_discovery"`
	EnableParallelSearch  bool `json:"enable_parallel_search"`
}

// NewDiscoveryRequest returns a request for companyName with default settings.
func NewDiscoveryRequest(companyName string) DiscoveryRequest {
	return DiscoveryRequest{
		CompanyName:           companyName,
		MaxResults:            DefaultMaxResults,
		MinSimilarityScore:    DefaultMinSimilarityScore,
		IncludeDatabaseSearch: true,
		IncludeWebDiscovery:   true,
		EnableParallelSearch:  true,
	}
}

// ApplyDefaults fills zero-valued numeric settings.
func (r *DiscoveryRequest) ApplyDefaults() {
	if r.MaxResults == 0 {
		r.MaxResults = DefaultMaxResults
	}
}

// Validate checks request bounds.
func (r DiscoveryRequest) Validate() error {
	if strings.TrimSpace(r.CompanyName) == "" {
		return fmt.Errorf("%w: company_name is required", ErrInvalidRequest)
	}
	if r.MaxResults < 1 || r.MaxResults > MaxResultsLimit {
		return fmt.Errorf("%w: max_results must be between 1 and %d, got %d", ErrInvalidRequest, MaxResultsLimit, r.MaxResults)
	}
	if r.MinSimilarityScore < 0 || r.MinSimilarityScore > 1 {
		return fmt.Errorf("%w: min_similarity_score must be between 0 and 1, got %g", ErrInvalidRequest, r.MinSimilarityScore)
	}
	return nil
}

// HasFilters reports whether any optional filter narrows the result set.
func (r DiscoveryRequest) HasFilters() bool {
	return r.IndustryFilter != "" ||
		r.BusinessModelFilter != "" ||
		r.LocationFilter != "" ||
		r.SizeFilter != "" ||
		r.MinSimilarityScore > DefaultMinSimilarityScore
}

// Filters returns a snapshot of the request's filters.
func (r DiscoveryRequest) Filters() map[string]any {
	f := map[string]any{
		"min_similarity_score": r.MinSimilarityScore,
		"max_results":          r.MaxResults,
	}
	if r.IndustryFilter != "" {
		f["industry_filter"] = r.IndustryFilter
	}
	if r.BusinessModelFilter != "" {
		f["business_model_filter"] = r.BusinessModelFilter
	}
	if r.LocationFilter != "" {
		f["location_filter"] = r.LocationFilter
	}
	if r.SizeFilter != "" {
		f["size_filter"] = r.SizeFilter
	}
	return f
}

// DiscoveryResult is the outcome of one discovery operation.
type DiscoveryResult struct {
	DiscoveryID      string         `json:"discovery_id"`
	QueryCompany     string         `json:"query_company"`
	SearchStrategy   string         `json:"search_strategy"`
	TotalSourcesUsed int            `json:"total_sources_used"`
	Matches          []CompanyMatch `json:"matches"`
	TotalMatches     int            `json:"total_matches"`

	ExecutionTimeSeconds float64            `json:"execution_time_seconds"`
	SourceTiming         map[string]float64 `json:"source_timing"`

	AverageConfidence      float64 `json:"average_confidence"`
	CoverageScore          float64 `json:"coverage_score"`
	FreshnessScore         float64 `json:"freshness_score"`
	IndustryDiversity      float64 `json:"industry_diversity"`
	BusinessModelDiversity float64 `json:"business_model_diversity"`

	FiltersApplied    map[string]any `json:"filters_applied"`
	ErrorsEncountered []string       `json:"errors_encountered"`
}

// Failed reports whether the result came from the total-failure path.
func (r DiscoveryResult) Failed() bool {
	return r.SearchStrategy == StrategyFailed
}

// failedResult builds the empty-but-valid result returned on total failure.
func failedResult(id string, req DiscoveryRequest, started time.Time, errs []string, cause string) DiscoveryResult {
	errs = append(append([]string(nil), errs...), cause)
	return DiscoveryResult{
		DiscoveryID:          id,
		QueryCompany:         req.CompanyName,
		SearchStrategy:       StrategyFailed,
		Matches:              []CompanyMatch{},
		SourceTiming:         map[string]float64{},
		ExecutionTimeSeconds: time.Since(started).Seconds(),
		FiltersApplied:       req.Filters(),
		ErrorsEncountered:    errs,
	}
}
