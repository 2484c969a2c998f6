package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/theodore/internal/logging"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio",
		Long: `Serve the discovery tools over the MCP stdio transport.

Stdout carries the protocol, so logs go to the OpenTelemetry exporter only
and are dropped when telemetry is disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, func(c *logging.Config) {
				c.Stdout = false
				c.OTEL = true
			})
			if err != nil {
				return err
			}
			defer rt.close()

			a, err := newApp(rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := newMCPServer(a)
			if err != nil {
				return err
			}
			a.monitor.Start(ctx)
			return srv.Run(ctx)
		},
	}
}
