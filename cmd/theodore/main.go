// Theodore discovers companies similar to a given company.
//
// It combines a vector database of known company profiles with web search
// backends (Perplexity, Tavily, Search Droid) and a Google fallback, then
// scores and ranks the merged results.
//
// Usage:
//
//	# REST API on :8085 with MCP mounted at /mcp
//	theodore serve
//
//	# MCP over stdio for desktop clients
//	theodore mcp
//
//	# Configure via environment
//	TAVILY_API_KEY=tvly-... SERVER_HTTP_PORT=9090 theodore serve
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/fyrsmithlabs/theodore/internal/logging"
	"github.com/fyrsmithlabs/theodore/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "theodore",
		Short:         "Company similarity discovery service",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/theodore/config.yaml)")
	root.AddCommand(newServeCmd(), newMCPCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "theodore by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// process is the process-wide plumbing every command needs.
type process struct {
	cfg    *config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
}

// setup loads config, then telemetry, then the logger bridged into it.
func setup(ctx context.Context, mutate func(*logging.Config)) (*process, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	if mutate != nil {
		mutate(logCfg)
	}
	logger, err := logging.New(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	for _, reason := range tel.Degraded() {
		logger.Warn("telemetry degraded", zap.String("reason", reason))
	}
	return &process{cfg: cfg, logger: logger, tel: tel}, nil
}

func (r *process) close() {
	if err := r.tel.Shutdown(context.Background()); err != nil {
		r.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = logging.Sync(r.logger)
}
