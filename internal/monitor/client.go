package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	thttp "github.com/fyrsmithlabs/theodore/internal/http"
)

// ErrServer wraps non-2xx answers from the API.
var ErrServer = errors.New("server error")

// Client calls the theodore REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (thttp.HealthResponse, error) {
	var out thttp.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Status calls GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (thttp.StatusResponse, error) {
	var out thttp.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out)
	return out, err
}

// Backends calls GET /api/v1/backends.
func (c *Client) Backends(ctx context.Context) (thttp.BackendsResponse, error) {
	var out thttp.BackendsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/backends", nil, &out)
	return out, err
}

// CheckBackends calls POST /api/v1/backends/check.
func (c *Client) CheckBackends(ctx context.Context) (thttp.CheckResponse, error) {
	var out thttp.CheckResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/backends/check", nil, &out)
	return out, err
}

// Discover calls POST /api/v1/discover.
func (c *Client) Discover(ctx context.Context, req thttp.DiscoverRequest) (discovery.DiscoveryResult, error) {
	var out discovery.DiscoveryResult
	err := c.do(ctx, http.MethodPost, "/api/v1/discover", req, &out)
	return out, err
}

// IndexCompanies calls POST /api/v1/companies.
func (c *Client) IndexCompanies(ctx context.Context, companies []thttp.Company) (thttp.IndexResponse, error) {
	var out thttp.IndexResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/companies", thttp.IndexRequest{Companies: companies}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrServer, method, path, resp.StatusCode, serverMessage(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// serverMessage extracts echo's {"message": ...} error body.
func serverMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(data))
}
