package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	thttp "github.com/fyrsmithlabs/theodore/internal/http"
)

func newIndexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "index [file]",
		Short: "Index company profiles into the vector database",
		Long: `Index company profiles from a JSON file or stdin.

The input is either an array of companies or {"companies": [...]}.

Examples:
  theoctl index companies.json
  cat companies.json | theoctl index -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}

			companies, err := parseCompanies(data)
			if err != nil {
				return err
			}

			ctx, cancel := statusContext(cmd, opts)
			defer cancel()
			resp, err := opts.client().IndexCompanies(ctx, companies)
			if err != nil {
				return fmt.Errorf("indexing companies: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d companies\n", okStyle.Render("Indexed"), resp.Total)
			return nil
		},
	}
}

// parseCompanies accepts a bare array or an IndexRequest object.
func parseCompanies(data []byte) ([]thttp.Company, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no companies to index")
	}

	var companies []thttp.Company
	if data[0] == '[' {
		if err := json.Unmarshal(data, &companies); err != nil {
			return nil, fmt.Errorf("parsing companies: %w", err)
		}
	} else {
		var req thttp.IndexRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parsing companies: %w", err)
		}
		companies = req.Companies
	}
	if len(companies) == 0 {
		return nil, fmt.Errorf("no companies to index")
	}
	return companies, nil
}
