package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

type discoverInput struct {
	CompanyName         string   `json:"company_name" jsonschema:"Name of the company to find similar companies for"`
	MaxResults          int      `json:"max_results,omitempty" jsonschema:"Maximum matches to return (1-200, default 50)"`
	MinSimilarityScore  *float64 `json:"min_similarity_score,omitempty" jsonschema:"Drop matches scoring below this (0-1, default 0.1)"`
	IndustryFilter      string   `json:"industry_filter,omitempty" jsonschema:"Keep only matches whose industry contains this text"`
	BusinessModelFilter string   `json:"business_model_filter,omitempty" jsonschema:"Keep only matches whose business model contains this text"`
	LocationFilter      string   `json:"location_filter,omitempty" jsonschema:"Keep only matches whose location contains this text"`
	SizeFilter          string   `json:"size_filter,omitempty" jsonschema:"startup, small, medium, large or enterprise"`
	DatabaseSearch      *bool    `json:"include_database_search,omitempty" jsonschema:"Search the company database (default true)"`
	WebDiscovery        *bool    `json:"include_web_discovery,omitempty" jsonschema:"Query web search backends (default true)"`
	ParallelSearch      *bool    `json:"enable_parallel_search,omitempty" jsonschema:"Query web backends concurrently (default true)"`
}

func (in discoverInput) request() discovery.DiscoveryRequest {
	req := discovery.NewDiscoveryRequest(strings.TrimSpace(in.CompanyName))
	if in.MaxResults != 0 {
		req.MaxResults = in.MaxResults
	}
	if in.MinSimilarityScore != nil {
		req.MinSimilarityScore = *in.MinSimilarityScore
	}
	req.IndustryFilter = in.IndustryFilter
	req.BusinessModelFilter = in.BusinessModelFilter
	req.LocationFilter = in.LocationFilter
	req.SizeFilter = in.SizeFilter
	if in.DatabaseSearch != nil {
		req.IncludeDatabaseSearch = *in.DatabaseSearch
	}
	if in.WebDiscovery != nil {
		req.IncludeWebDiscovery = *in.WebDiscovery
	}
	if in.ParallelSearch != nil {
		req.EnableParallelSearch = *in.ParallelSearch
	}
	return req
}

type backendsInput struct{}

type backendsOutput struct {
	Backends  []discovery.BackendStatus `json:"backends"`
	Available []string                  `json:"available"`
}

type checkOutput struct {
	Recovered []string                  `json:"recovered"`
	Backends  []discovery.BackendStatus `json:"backends"`
}

type companyInput struct {
	CompanyName   string `json:"company_name"`
	Domain        string `json:"domain,omitempty"`
	Description   string `json:"description,omitempty"`
	Industry      string `json:"industry,omitempty"`
	BusinessModel string `json:"business_model,omitempty"`
	EmployeeCount *int   `json:"employee_count,omitempty"`
	Location      string `json:"location,omitempty"`
}

type indexInput struct {
	Companies []companyInput `json:"companies" jsonschema:"Company profiles to store"`
}

type indexOutput struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// instrument wraps a tool body with the call metrics.
func (s *Server) instrument(ctx context.Context, tool string, fn func() error) {
	start := time.Now()
	err := fn()
	s.metrics.RecordCall(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
	}
}

// registerTools adds every tool. Outputs that carry timestamps are returned
// untyped so no output schema is inferred for them.
func (s *Server) registerTools() {
	// discover_similar_companies
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "discover_similar_companies",
		Description: "Find companies similar to the given company using the company database and web search backends. Results are scored, deduplicated and ranked.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args discoverInput) (*mcp.CallToolResult, any, error) {
		var (
			result  discovery.DiscoveryResult
			toolErr error
		)
		s.instrument(ctx, "discover_similar_companies", func() error {
			dr := args.request()
			if toolErr = dr.Validate(); toolErr != nil {
				return toolErr
			}
			result = s.discoverer.Execute(ctx, dr)
			s.metrics.RecordDiscovery(ctx, result)
			return nil
		})
		if toolErr != nil {
			return nil, nil, toolErr
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: summarize(result)},
			},
		}, result, nil
	})

	// list_search_backends
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_search_backends",
		Description: "List registered search backends and their health",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ backendsInput) (*mcp.CallToolResult, any, error) {
		var output backendsOutput
		s.instrument(ctx, "list_search_backends", func() error {
			output = backendsOutput{
				Backends:  s.registry.Status(),
				Available: s.registry.AvailableTools(),
			}
			return nil
		})
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d of %d backends healthy", len(output.Available), len(output.Backends))},
			},
		}, output, nil
	})

	// check_search_backends
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_search_backends",
		Description: "Probe unhealthy search backends now and re-admit the ones that recovered",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ backendsInput) (*mcp.CallToolResult, any, error) {
		var (
			output  checkOutput
			toolErr error
		)
		s.instrument(ctx, "check_search_backends", func() error {
			if s.prober == nil {
				toolErr = fmt.Errorf("health monitor %w", ErrNotConfigured)
				return toolErr
			}
			recovered := s.prober.CheckNow(ctx)
			if recovered == nil {
				recovered = []string{}
			}
			output = checkOutput{Recovered: recovered, Backends: s.registry.Status()}
			return nil
		})
		if toolErr != nil {
			return nil, nil, toolErr
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Recovered %d backends", len(output.Recovered))},
			},
		}, output, nil
	})

	// index_companies
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_companies",
		Description: "Store company profiles in the company database so later discoveries can find them",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args indexInput) (*mcp.CallToolResult, indexOutput, error) {
		var (
			output  indexOutput
			toolErr error
		)
		s.instrument(ctx, "index_companies", func() error {
			output, toolErr = s.indexCompanies(ctx, args)
			return toolErr
		})
		if toolErr != nil {
			return nil, indexOutput{}, toolErr
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Indexed %d companies (%d stored)", len(output.IDs), output.Total)},
			},
		}, output, nil
	})
}

func (s *Server) indexCompanies(ctx context.Context, args indexInput) (indexOutput, error) {
	if s.indexer == nil {
		return indexOutput{}, fmt.Errorf("vector store %w", ErrNotConfigured)
	}
	if len(args.Companies) == 0 {
		return indexOutput{}, fmt.Errorf("%w: companies is required", discovery.ErrInvalidRequest)
	}

	matches := make([]discovery.CompanyMatch, len(args.Companies))
	for i, c := range args.Companies {
		m := discovery.NewCompanyMatch(strings.TrimSpace(c.CompanyName), discovery.SourceManualResearch)
		m.Domain = c.Domain
		m.Description = c.Description
		m.Industry = c.Industry
		m.BusinessModel = c.BusinessModel
		m.EmployeeCount = c.EmployeeCount
		m.Location = c.Location
		if err := m.Validate(); err != nil {
			return indexOutput{}, fmt.Errorf("companies[%d]: %w", i, err)
		}
		matches[i] = m
	}

	ids, err := s.indexer.IndexCompanies(ctx, matches)
	if err != nil {
		return indexOutput{}, err
	}
	total, err := s.indexer.Count(ctx)
	if err != nil {
		total = -1
	}
	return indexOutput{IDs: ids, Total: total}, nil
}

// summarize renders a short text version of a result for clients that
// ignore structured content.
func summarize(r discovery.DiscoveryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d companies similar to %s (strategy: %s, sources: %d)",
		r.TotalMatches, r.QueryCompany, r.SearchStrategy, r.TotalSourcesUsed)
	for i, m := range r.Matches {
		if i == 10 {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Matches)-10)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, m.CompanyName)
		if m.Domain != "" {
			fmt.Fprintf(&b, " (%s)", m.Domain)
		}
		fmt.Fprintf(&b, " similarity=%.2f confidence=%.2f source=%s", m.SimilarityScore, m.ConfidenceScore, m.Source)
	}
	for _, e := range r.ErrorsEncountered {
		fmt.Fprintf(&b, "\nwarning: %s", e)
	}
	return b.String()
}
