package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// ErrToolFailed is returned when the remote MCP tool reports an error.
var ErrToolFailed = errors.New("mcp tool failed")

const defaultSearchDroidTool = "search_companies"

// SearchDroidConfig configures the MCP Search Droid backend.
type SearchDroidConfig struct {
	// Endpoint is the MCP server URL.
	Endpoint string
	// Transport is "streamable" (default) or "sse".
	Transport string
	// Tool is the remote tool name (default: search_companies).
	Tool    string
	Timeout time.Duration

	// ClientTransport overrides Endpoint handling, mainly for tests.
	ClientTransport mcp.Transport
}

// SearchDroid calls a company search tool on a remote MCP server. The
// session is opened lazily and reopened after a failed call.
type SearchDroid struct {
	cfg    SearchDroidConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewSearchDroid creates the backend without connecting.
func NewSearchDroid(cfg SearchDroidConfig, logger *zap.Logger) (*SearchDroid, error) {
	if cfg.ClientTransport == nil && strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: search droid endpoint required", ErrInvalidConfig)
	}
	switch cfg.Transport {
	case "":
		cfg.Transport = "streamable"
	case "streamable", "sse":
	default:
		return nil, fmt.Errorf("%w: unsupported search droid transport %q", ErrInvalidConfig, cfg.Transport)
	}
	if cfg.Tool == "" {
		cfg.Tool = defaultSearchDroidTool
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchDroid{
		cfg:    cfg,
		logger: logger.With(zap.String("backend", string(discovery.SourceSearchDroid))),
	}, nil
}

// Name implements discovery.SearchBackend.
func (s *SearchDroid) Name() string { return string(discovery.SourceSearchDroid) }

func (s *SearchDroid) transport() mcp.Transport {
	if s.cfg.ClientTransport != nil {
		return s.cfg.ClientTransport
	}
	if s.cfg.Transport == "sse" {
		return &mcp.SSEClientTransport{Endpoint: s.cfg.Endpoint}
	}
	return &mcp.StreamableClientTransport{Endpoint: s.cfg.Endpoint}
}

func (s *SearchDroid) connect(ctx context.Context) (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "theodore", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, s.transport(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to search droid: %w", err)
	}
	s.session = session
	s.logger.Debug("search droid session opened")
	return session, nil
}

func (s *SearchDroid) reset(session *mcp.ClientSession) {
	s.mu.Lock()
	if s.session == session {
		s.session = nil
	}
	s.mu.Unlock()
	_ = session.Close()
}

// Search implements discovery.SearchBackend.
func (s *SearchDroid) Search(ctx context.Context, query string, req discovery.DiscoveryRequest) ([]discovery.CompanyMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	session, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	args := map[string]any{
		"query":        query,
		"company_name": req.CompanyName,
		"max_results":  req.MaxResults,
	}
	for k, v := range req.Filters() {
		args[k] = v
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: s.cfg.Tool, Arguments: args})
	if err != nil {
		s.reset(session)
		return nil, fmt.Errorf("calling %s: %w", s.cfg.Tool, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("%w: %s", ErrToolFailed, toolResultError(result))
	}

	data, ok, err := toolResultJSON(result)
	if err != nil {
		return nil, fmt.Errorf("encoding structured content: %w", err)
	}
	if !ok {
		s.logger.Debug("no JSON content in tool result", zap.String("query", query))
		return nil, nil
	}
	records, err := decodeCompanies(data)
	if err != nil {
		return nil, fmt.Errorf("decoding search droid companies: %w", err)
	}
	return recordsToMatches(records, discovery.SourceSearchDroid, query, req), nil
}

// HealthCheck pings the MCP server, opening a session if needed.
func (s *SearchDroid) HealthCheck(ctx context.Context) error {
	session, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := session.Ping(ctx, nil); err != nil {
		s.reset(session)
		return fmt.Errorf("search droid ping: %w", err)
	}
	return nil
}

// Close ends the session if one is open.
func (s *SearchDroid) Close() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

// toolResultJSON extracts the JSON payload of a tool result, preferring
// structured content over the first JSON text block. ok is false when the
// result carries no JSON at all.
func toolResultJSON(result *mcp.CallToolResult) (data []byte, ok bool, err error) {
	if result.StructuredContent != nil {
		data, err = json.Marshal(result.StructuredContent)
		return data, err == nil, err
	}
	for _, c := range result.Content {
		text, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(text.Text)
		if json.Valid([]byte(trimmed)) {
			return []byte(trimmed), true, nil
		}
		if array, found := firstJSONArray(trimmed); found {
			return []byte(array), true, nil
		}
	}
	return nil, false, nil
}

func toolResultError(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(*mcp.TextContent); ok && text.Text != "" {
			return text.Text
		}
	}
	return "tool execution failed"
}

var (
	_ discovery.SearchBackend = (*SearchDroid)(nil)
	_ discovery.HealthChecker = (*SearchDroid)(nil)
)
