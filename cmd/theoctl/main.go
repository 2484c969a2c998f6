// Package main implements theoctl, the command-line client for a running
// theodore server.
//
// Usage:
//
//	# Find companies similar to Stripe
//	theoctl discover Stripe --max-results 10 --industry fintech
//
//	# Inspect and re-probe search backends
//	theoctl backends
//	theoctl check
//
//	# Load company profiles into the vector database
//	theoctl index companies.json
//
//	# Live dashboard and event stream
//	theoctl dashboard
//	theoctl events watch --nats nats://localhost:4222
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/theodore/internal/logging"
	"github.com/fyrsmithlabs/theodore/internal/monitor"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultServerURL = "http://localhost:8085"

// options are the persistent flags shared by every command.
type options struct {
	serverURL string
	timeout   time.Duration
	verbose   bool
}

func (o *options) client() *monitor.Client {
	return monitor.NewClient(o.serverURL, o.timeout)
}

// logger writes console logs to w. Only warnings are shown unless --verbose.
func (o *options) logger(w io.Writer) *zap.Logger {
	cfg := logging.NewDefaultConfig()
	cfg.Format = "console"
	cfg.Caller = false
	cfg.Fields = nil
	cfg.Level = zapcore.WarnLevel
	if o.verbose {
		cfg.Level = zapcore.DebugLevel
	}
	logger, err := logging.NewWithWriter(cfg, w)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "theoctl",
		Short: "CLI for the theodore discovery server",
		Long: `theoctl talks to a running theodore server over its REST API.
It runs discoveries, manages search backends, indexes company profiles and
follows discovery events.`,
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("THEODORE_URL", defaultServerURL), "theodore server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		newDiscoverCmd(opts),
		newBackendsCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newIndexCmd(opts),
		newDashboardCmd(opts),
		newEventsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "theoctl by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
