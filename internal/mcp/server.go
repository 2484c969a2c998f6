package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

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

// Server exposes discovery as MCP tools.
type Server struct {
	mcp        *mcp.Server
	discoverer Discoverer
	registry   BackendRegistry
	prober     HealthProber
	indexer    CompanyIndexer
	metrics    *Metrics
	logger     *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "theodore")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "theodore",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server. prober and indexer are optional; the
// tools that need them report an error when they are nil.
func NewServer(cfg *Config, discoverer Discoverer, registry BackendRegistry, prober HealthProber, indexer CompanyIndexer) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:        mcpServer,
		discoverer: discoverer,
		registry:   registry,
		prober:     prober,
		indexer:    indexer,
		metrics:    NewMetrics(cfg.Logger),
		logger:     cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on the stdio transport until ctx is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves MCP on transport, for in-process clients and tests.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// HTTPHandler serves MCP over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}
