package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	thttp "github.com/fyrsmithlabs/theodore/internal/http"
	"github.com/fyrsmithlabs/theodore/internal/monitor"
)

type discoverFlags struct {
	maxResults    int
	minScore      float64
	industry      string
	businessModel string
	location      string
	size          string
	noDatabase    bool
	noWeb         bool
	sequential    bool
	asJSON        bool
}

func newDiscoverCmd(opts *options) *cobra.Command {
	f := &discoverFlags{}
	cmd := &cobra.Command{
		Use:   "discover <company name>",
		Short: "Find companies similar to a company",
		Long: `Run a discovery against the server and print the ranked matches.

Examples:
  theoctl discover Stripe
  theoctl discover "Acme Robotics" --industry robotics --max-results 10
  theoctl discover Stripe --no-web --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := f.request(strings.Join(args, " "), cmd)
			result, err := opts.client().Discover(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}
			if f.asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printDiscovery(cmd.OutOrStdout(), result)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.maxResults, "max-results", "n", 0, "maximum matches to return (server default when 0)")
	fl.Float64Var(&f.minScore, "min-score", discovery.DefaultMinSimilarityScore, "minimum similarity score")
	fl.StringVar(&f.industry, "industry", "", "industry filter")
	fl.StringVar(&f.businessModel, "business-model", "", "business model filter")
	fl.StringVar(&f.location, "location", "", "location filter")
	fl.StringVar(&f.size, "size", "", "size filter (startup, small, medium, large, enterprise)")
	fl.BoolVar(&f.noDatabase, "no-database", false, "skip the vector database")
	fl.BoolVar(&f.noWeb, "no-web", false, "skip web discovery")
	fl.BoolVar(&f.sequential, "sequential", false, "query web backends one at a time")
	fl.BoolVar(&f.asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

// request maps flags onto the REST request. Flags left unset keep the
// server defaults.
func (f *discoverFlags) request(name string, cmd *cobra.Command) thttp.DiscoverRequest {
	req := thttp.DiscoverRequest{
		CompanyName:         strings.TrimSpace(name),
		MaxResults:          f.maxResults,
		IndustryFilter:      f.industry,
		BusinessModelFilter: f.businessModel,
		LocationFilter:      f.location,
		SizeFilter:          f.size,
	}
	if cmd.Flags().Changed("min-score") {
		score := f.minScore
		req.MinSimilarityScore = &score
	}
	if f.noDatabase {
		req.IncludeDatabaseSearch = boolPtr(false)
	}
	if f.noWeb {
		req.IncludeWebDiscovery = boolPtr(false)
	}
	if f.sequential {
		req.EnableParallelSearch = boolPtr(false)
	}
	return req
}

func boolPtr(b bool) *bool { return &b }

func printDiscovery(w io.Writer, res discovery.DiscoveryResult) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Companies similar to"), res.QueryCompany)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("strategy %s · %d sources · %d matches in %.2fs",
		res.SearchStrategy, res.TotalSourcesUsed, res.TotalMatches, res.ExecutionTimeSeconds)))

	if len(res.Matches) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No matches found."))
	} else {
		t := newTable("#", "Company", "Domain", "Industry", "Similarity", "Confidence", "Source")
		for i, m := range res.Matches {
			t.Row(
				strconv.Itoa(i+1),
				m.CompanyName,
				m.Domain,
				m.Industry,
				monitor.FormatScore(m.SimilarityScore),
				monitor.FormatScore(m.ConfidenceScore),
				string(m.Source),
			)
		}
		fmt.Fprintln(w, t.String())
	}

	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("confidence %s · coverage %s · freshness %s · industry diversity %s",
		monitor.FormatScore(res.AverageConfidence),
		monitor.FormatScore(res.CoverageScore),
		monitor.FormatScore(res.FreshnessScore),
		monitor.FormatScore(res.IndustryDiversity))))

	for _, e := range res.ErrorsEncountered {
		fmt.Fprintln(w, warnStyle.Render("! "+e))
	}
}

// statusContext bounds the short admin calls.
func statusContext(cmd *cobra.Command, opts *options) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), opts.timeout)
}
