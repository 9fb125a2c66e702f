// Package girder is the REST client for the image search backend: feature
// lookup, feature computation and result page searches.
package girder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/imagespace/internal/domain/session"
	"github.com/kailas-cloud/imagespace/internal/metrics"
)

const (
	// TokenHeader carries the user's session token to the backend.
	// Tokens are attached to request contexts with session.WithToken.
	TokenHeader = "Girder-Token"
	userAgent   = "imagespace/1.0"
	// maxErrorBody bounds how much of a failed response is kept for diagnostics.
	maxErrorBody = 512
)

// Config holds client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	ComputeRatePerSec float64
	ComputeBurst      int
	Logger            *zap.Logger
}

// Client talks to the backend REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	compute *rate.Limiter
	logger  *zap.Logger
}

// SearchResponse is the backend's paginated document response.
type SearchResponse struct {
	NumFound int               `json:"numFound"`
	Docs     []json.RawMessage `json:"docs"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("girder %s: status %d: %s", e.Op, e.Status, e.Body)
}

// New creates a backend client. A zero ComputeRatePerSec disables throttling.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.ComputeRatePerSec > 0 {
		limit = rate.Limit(cfg.ComputeRatePerSec)
	}
	burst := cfg.ComputeBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		compute: rate.NewLimiter(limit, burst),
		logger:  cfg.Logger,
	}, nil
}

// Search issues GET <path>?<params> and decodes a document page.
func (c *Client) Search(ctx context.Context, path string, params url.Values) (SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, "search", http.MethodGet, path, params, nil, &out); err != nil {
		return SearchResponse{}, err
	}
	return out, nil
}

// PostForm issues a form-encoded POST and returns the raw JSON body.
func (c *Client) PostForm(ctx context.Context, op, path string, form url.Values) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, op, http.MethodPost, path, nil, form, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck asks the server for its version.
func (c *Client) HealthCheck(ctx context.Context) error {
	var out json.RawMessage
	return c.do(ctx, "version", http.MethodGet, "system/version", nil, nil, &out)
}

func (c *Client) do(
	ctx context.Context,
	op, method, path string,
	params, form url.Values,
	out any,
) error {
	u := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("girder %s: build request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token := session.Token(ctx); token != "" {
		req.Header.Set(TokenHeader, token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues("girder", op, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("girder %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequestDuration.WithLabelValues("girder", op, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Backend request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("girder %s: decode response: %w", op, err)
	}
	return nil
}
