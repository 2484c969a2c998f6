package http

import (
	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DiscoverRequest is the request body for POST /api/v1/discover.
//
// Omitted booleans keep their defaults (all true); omitted numbers use the
// discovery defaults.
type DiscoverRequest struct {
	CompanyName         string   `json:"company_name"`
	MaxResults          int      `json:"max_results,omitempty"`
	MinSimilarityScore  *float64 `json:"min_similarity_score,omitempty"`
	IndustryFilter      string   `json:"industry_filter,omitempty"`
	BusinessModelFilter string   `json:"business_model_filter,omitempty"`
	LocationFilter      string   `json:"location_filter,omitempty"`
	SizeFilter          string   `json:"size_filter,omitempty"`

	IncludeDatabaseSearch *bool `json:"include_database_search,omitempty"`
	IncludeWebDiscovery   *bool `json:"include_web_discovery,omitempty"`
	EnableParallelSearch  *bool `json:"enable_parallel_search,omitempty"`
}

// ToDiscoveryRequest applies the request on top of discovery defaults.
func (r DiscoverRequest) ToDiscoveryRequest() discovery.DiscoveryRequest {
	req := discovery.NewDiscoveryRequest(r.CompanyName)
	if r.MaxResults != 0 {
		req.MaxResults = r.MaxResults
	}
	if r.MinSimilarityScore != nil {
		req.MinSimilarityScore = *r.MinSimilarityScore
	}
	req.IndustryFilter = r.IndustryFilter
	req.BusinessModelFilter = r.BusinessModelFilter
	req.LocationFilter = r.LocationFilter
	req.SizeFilter = r.SizeFilter
	if r.IncludeDatabaseSearch != nil {
		req.IncludeDatabaseSearch = *r.IncludeDatabaseSearch
	}
	if r.IncludeWebDiscovery != nil {
		req.IncludeWebDiscovery = *r.IncludeWebDiscovery
	}
	if r.EnableParallelSearch != nil {
		req.EnableParallelSearch = *r.EnableParallelSearch
	}
	return req
}

// BackendsResponse is the response body for GET /api/v1/backends.
type BackendsResponse struct {
	Backends  []discovery.BackendStatus `json:"backends"`
	Available []string                  `json:"available"`
}

// CheckResponse is the response body for POST /api/v1/backends/check.
type CheckResponse struct {
	Recovered []string                  `json:"recovered"`
	Backends  []discovery.BackendStatus `json:"backends"`
}

// Company is one profile in an index request.
type Company struct {
	CompanyName   string `json:"company_name"`
	Domain        string `json:"domain,omitempty"`
	Description   string `json:"description,omitempty"`
	Industry      string `json:"industry,omitempty"`
	BusinessModel string `json:"business_model,omitempty"`
	EmployeeCount *int   `json:"employee_count,omitempty"`
	Location      string `json:"location,omitempty"`
}

func (c Company) toMatch() discovery.CompanyMatch {
	m := discovery.NewCompanyMatch(c.CompanyName, discovery.SourceManualResearch)
	m.Domain = c.Domain
	m.Description = c.Description
	m.Industry = c.Industry
	m.BusinessModel = c.BusinessModel
	m.EmployeeCount = c.EmployeeCount
	m.Location = c.Location
	return m
}

// IndexRequest is the request body for POST /api/v1/companies.
type IndexRequest struct {
	Companies []Company `json:"companies"`
}

// IndexResponse is the response body for POST /api/v1/companies.
type IndexResponse struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Backends  int    `json:"backends"`
	Healthy   int    `json:"healthy"`
	Companies int    `json:"companies"` // -1 when no store is configured
}
