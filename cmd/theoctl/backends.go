package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/monitor"
)

func newBackendsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List search backends and their health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := statusContext(cmd, opts)
			defer cancel()

			resp, err := opts.client().Backends(ctx)
			if err != nil {
				return fmt.Errorf("listing backends: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printBackends(cmd.OutOrStdout(), resp.Backends, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Re-probe unhealthy backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := statusContext(cmd, opts)
			defer cancel()

			resp, err := opts.client().CheckBackends(ctx)
			if err != nil {
				return fmt.Errorf("checking backends: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(resp.Recovered) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No backends recovered."))
			} else {
				fmt.Fprintf(out, "%s %s\n", okStyle.Render("Recovered:"), strings.Join(resp.Recovered, ", "))
			}
			printBackends(out, resp.Backends, time.Now())
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := statusContext(cmd, opts)
			defer cancel()

			status, err := opts.client().Status(ctx)
			if err != nil {
				return fmt.Errorf("fetching status: %w", err)
			}
			out := cmd.OutOrStdout()
			label := okStyle.Render(status.Status)
			if status.Healthy < status.Backends {
				label = warnStyle.Render(status.Status)
			}
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("theodore"), label)
			fmt.Fprintf(out, "Server:    %s\n", opts.serverURL)
			fmt.Fprintf(out, "Version:   %s\n", status.Version)
			fmt.Fprintf(out, "Backends:  %d/%d healthy\n", status.Healthy, status.Backends)
			fmt.Fprintf(out, "Companies: %s\n", monitor.FormatCount(status.Companies))
			return nil
		},
	}
}

func printBackends(w io.Writer, backends []discovery.BackendStatus, now time.Time) {
	if len(backends) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No search backends registered."))
		return
	}
	t := newTable("Backend", "Health", "Since", "Last error")
	for _, b := range backends {
		t.Row(b.Name, healthLabel(b.Healthy), monitor.FormatAge(b.ChangedAt, now), b.LastError)
	}
	fmt.Fprintln(w, t.String())
}
