package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	thttp "github.com/fyrsmithlabs/theodore/internal/http"
	"github.com/fyrsmithlabs/theodore/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	a, err := newApp(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newHTTPServer(a)
	if err != nil {
		return err
	}

	a.monitor.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}

// newHTTPServer builds the REST API and mounts the MCP streamable handler
// at /mcp.
func newHTTPServer(a *app) (*thttp.Server, error) {
	deps := thttp.Deps{
		Discoverer: a.orchestrator,
		Registry:   a.registry,
		Prober:     a.monitor,
	}
	if a.companies != nil {
		deps.Indexer = a.companies
	}
	srv, err := thttp.NewServer(deps, a.logger, &thttp.Config{
		Host:    a.cfg.Server.Host,
		Port:    a.cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return nil, err
	}

	mcpServer, err := newMCPServer(a)
	if err != nil {
		return nil, err
	}
	handler := echo.WrapHandler(mcpServer.HTTPHandler())
	srv.Echo().Any("/mcp", handler)
	srv.Echo().Any("/mcp/*", handler)
	return srv, nil
}

func newMCPServer(a *app) (*mcp.Server, error) {
	cfg := mcp.DefaultConfig()
	cfg.Version = version
	cfg.Logger = a.logger

	var indexer mcp.CompanyIndexer
	if a.companies != nil {
		indexer = a.companies
	}
	return mcp.NewServer(cfg, a.orchestrator, a.registry, a.monitor, indexer)
}
