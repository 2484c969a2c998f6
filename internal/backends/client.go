package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates a backend was constructed without required settings.
	ErrInvalidConfig = errors.New("invalid backend configuration")

	// ErrRateLimited is returned when the provider keeps answering 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnexpectedStatus wraps non-2xx responses that are not retried.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRateLimit   = 2.0
	defaultBurst       = 2
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	maxResponseBytes   = 4 << 20
)

// HTTPConfig holds settings shared by the JSON-over-HTTP backends.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	MaxRetries int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// apiClient sends rate-limited JSON requests with retries.
type apiClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	headers    func(h http.Header)
	logger     *zap.Logger
}

func newAPIClient(name string, cfg HTTPConfig, headers func(http.Header), logger *zap.Logger) (*apiClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s base URL required", ErrInvalidConfig, name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &apiClient{
		name:       name,
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), defaultBurst),
		maxRetries: retries,
		backoff:    defaultBaseBackoff,
		headers:    headers,
		logger:     logger.With(zap.String("backend", name)),
	}, nil
}

// postJSON sends in as JSON to path and decodes the 2xx response into out.
func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

// getJSON issues a GET to path and decodes the 2xx response into out.
func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return err
		}
		c.logger.Debug("retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *apiClient) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.headers != nil {
		c.headers(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retryableError{err: fmt.Errorf("%s request failed: %w", c.name, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &retryableError{err: fmt.Errorf("%w: %s returned 429", ErrRateLimited, c.name)}
	case resp.StatusCode >= 500:
		return &retryableError{err: fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, c.name, resp.StatusCode, truncate(string(data), 200))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, c.name, resp.StatusCode, truncate(string(data), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	return nil
}

// ping checks that the provider answers at all. Any status below 500 counts,
// since unauthenticated probes commonly get 401 or 404.
func (c *apiClient) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", c.name, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, c.name, resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
