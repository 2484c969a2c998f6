// Package http provides the REST API for theodore.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxIndexBatch = 500

// Discoverer runs one discovery operation.
type Discoverer interface {
	Execute(ctx context.Context, req discovery.DiscoveryRequest) discovery.DiscoveryResult
}

// BackendRegistry reports backend health.
type BackendRegistry interface {
	Status() []discovery.BackendStatus
	AvailableTools() []string
}

// HealthProber re-checks unhealthy backends on demand.
type HealthProber interface {
	CheckNow(ctx context.Context) []string
}

// CompanyIndexer stores company profiles for the database phase.
type CompanyIndexer interface {
	IndexCompanies(ctx context.Context, companies []discovery.CompanyMatch) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the services behind the API. Discoverer and Registry are
// required; without Prober or Indexer the matching endpoints answer 503.
type Deps struct {
	Discoverer Discoverer
	Registry   BackendRegistry
	Prober     HealthProber
	Indexer    CompanyIndexer
}

// Server provides HTTP endpoints for theodore.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer cannot be nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8085,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logging.Ctx(ctx, logger).Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/discover", s.handleDiscover)
	v1.GET("/backends", s.handleBackends)
	v1.POST("/backends/check", s.handleCheckBackends)
	v1.POST("/companies", s.handleIndexCompanies)
}

// Echo exposes the router so callers can mount extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Backends:  len(s.deps.Registry.Status()),
		Healthy:   len(s.deps.Registry.AvailableTools()),
		Companies: -1,
	}
	if s.deps.Indexer != nil {
		n, err := s.deps.Indexer.Count(c.Request().Context())
		if err != nil {
			s.logger.Warn("counting companies failed", zap.Error(err))
			resp.Status = "degraded"
		} else {
			resp.Companies = n
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleDiscover runs discovery synchronously. Only an undecodable body gets
// 400. A request that fails validation, like any total failure, comes back
// with 200 as a result whose search_strategy is "failed".
func (s *Server) handleDiscover(c echo.Context) error {
	var body DiscoverRequest
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid discover request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req := body.ToDiscoveryRequest()
	req.CompanyName = strings.TrimSpace(req.CompanyName)

	ctx := c.Request().Context()
	result := s.deps.Discoverer.Execute(ctx, req)
	s.metrics.RecordDiscover(ctx, result)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleBackends(c echo.Context) error {
	return c.JSON(http.StatusOK, BackendsResponse{
		Backends:  s.deps.Registry.Status(),
		Available: s.deps.Registry.AvailableTools(),
	})
}

func (s *Server) handleCheckBackends(c echo.Context) error {
	if s.deps.Prober == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "health monitor not configured")
	}
	recovered := s.deps.Prober.CheckNow(c.Request().Context())
	if recovered == nil {
		recovered = []string{}
	}
	return c.JSON(http.StatusOK, CheckResponse{
		Recovered: recovered,
		Backends:  s.deps.Registry.Status(),
	})
}

func (s *Server) handleIndexCompanies(c echo.Context) error {
	if s.deps.Indexer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "vector store not configured")
	}

	var body IndexRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(body.Companies) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "companies field is required")
	}
	if len(body.Companies) > maxIndexBatch {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d companies per request", maxIndexBatch))
	}

	matches := make([]discovery.CompanyMatch, len(body.Companies))
	for i, company := range body.Companies {
		matches[i] = company.toMatch()
		if err := matches[i].Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("companies[%d]: %v", i, err))
		}
	}

	ids, err := s.deps.Indexer.IndexCompanies(c.Request().Context(), matches)
	if err != nil {
		s.logger.Error("indexing companies failed", zap.Error(err))
		if errors.Is(err, discovery.ErrInvalidMatch) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "indexing failed")
	}

	total, err := s.deps.Indexer.Count(c.Request().Context())
	if err != nil {
		total = -1
	}
	return c.JSON(http.StatusCreated, IndexResponse{IDs: ids, Total: total})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
