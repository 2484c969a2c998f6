package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/events"
	"github.com/fyrsmithlabs/theodore/internal/logging"
)

func newEventsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Discovery event stream",
	}
	cmd.AddCommand(newEventsWatchCmd(opts))
	return cmd
}

func newEventsWatchCmd(opts *options) *cobra.Command {
	var natsCfg config.NATSConfig
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print discovery and backend events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			defer func() { _ = logging.Sync(logger) }()

			natsCfg.ClientName = "theoctl"
			sub, err := events.Connect(natsCfg, logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("watching %s.> on %s (ctrl+c to stop)", subjectPrefix(natsCfg), natsCfg.URL)))

			var mu sync.Mutex
			err = sub.Subscribe(ctx, func(subject string, ev discovery.Event) {
				mu.Lock()
				defer mu.Unlock()
				printEvent(out, subject, ev)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&natsCfg.URL, "nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	cmd.Flags().StringVar(&natsCfg.SubjectPrefix, "prefix", events.DefaultSubjectPrefix, "subject prefix")
	return cmd
}

func subjectPrefix(cfg config.NATSConfig) string {
	if cfg.SubjectPrefix == "" {
		return events.DefaultSubjectPrefix
	}
	return cfg.SubjectPrefix
}

func printEvent(w io.Writer, subject string, ev discovery.Event) {
	ts := dimStyle.Render(ev.Timestamp.Format("15:04:05"))
	switch ev.Type {
	case discovery.EventDiscoveryCompleted:
		fmt.Fprintf(w, "%s %s %s strategy=%s matches=%d %.2fs\n",
			ts, okStyle.Render("discovery"), ev.QueryCompany, ev.SearchStrategy, ev.TotalMatches, ev.DurationSecs)
	case discovery.EventDiscoveryFailed:
		fmt.Fprintf(w, "%s %s %s %d errors\n",
			ts, errStyle.Render("discovery failed"), ev.QueryCompany, len(ev.Errors))
	case discovery.EventBackendHealthy:
		fmt.Fprintf(w, "%s %s %s\n", ts, okStyle.Render("backend up"), ev.Backend)
	case discovery.EventBackendUnhealthy:
		fmt.Fprintf(w, "%s %s %s %s\n", ts, errStyle.Render("backend down"), ev.Backend, dimStyle.Render(ev.Error))
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, warnStyle.Render(string(ev.Type)), dimStyle.Render(subject))
	}
}
