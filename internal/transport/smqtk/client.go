// Package smqtk is the client for the interactive query refinement (IQR)
// service.
package smqtk

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

	"github.com/kailas-cloud/imagespace/internal/metrics"
)

const maxErrorBody = 512

// Client talks to the IQR service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// Scored is one IQR result: an image checksum and its relevance confidence.
type Scored struct {
	SHA1       string
	Confidence float64
}

// UnmarshalJSON decodes the service's [sha, confidence] pair.
func (s *Scored) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode iqr result: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode iqr result: expected [sha, confidence], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.SHA1); err != nil {
		return fmt.Errorf("decode iqr sha: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.Confidence); err != nil {
		return fmt.Errorf("decode iqr confidence: %w", err)
	}
	return nil
}

// Results is one window of IQR results.
type Results struct {
	Results []Scored `json:"results"`
	Total   int      `json:"total_results"`
}

// Refinement is a relevance feedback request.
type Refinement struct {
	SID      string   `json:"sid"`
	Positive []string `json:"pos_uuids"`
	Negative []string `json:"neg_uuids"`
}

// New creates an IQR client.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: base, http: &http.Client{Timeout: timeout}, logger: logger}, nil
}

// CreateSession starts an IQR session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SID string `json:"sid"`
	}
	if err := c.do(ctx, "session", http.MethodPost, "session", nil, nil, &out); err != nil {
		return "", err
	}
	if out.SID == "" {
		return "", fmt.Errorf("smqtk session: empty sid")
	}
	return out.SID, nil
}

// Refine submits positive and negative examples and returns the service's
// response verbatim.
func (c *Client) Refine(ctx context.Context, r Refinement) (json.RawMessage, error) {
	if r.SID == "" {
		return nil, fmt.Errorf("smqtk refine: sid is required")
	}
	pos, err := json.Marshal(nonNil(r.Positive))
	if err != nil {
		return nil, fmt.Errorf("smqtk refine: %w", err)
	}
	neg, err := json.Marshal(nonNil(r.Negative))
	if err != nil {
		return nil, fmt.Errorf("smqtk refine: %w", err)
	}
	form := url.Values{"sid": {r.SID}, "pos_uuids": {string(pos)}, "neg_uuids": {string(neg)}}

	var out json.RawMessage
	if err := c.do(ctx, "refine", http.MethodPut, "refine", nil, form, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Results returns results [offset, offset+limit) of a session.
func (c *Client) Results(ctx context.Context, sid string, offset, limit int) (Results, error) {
	params := url.Values{
		"sid": {sid},
		"i":   {strconv.Itoa(offset)},
		"j":   {strconv.Itoa(offset + limit)},
	}
	var out Results
	if err := c.do(ctx, "results", http.MethodGet, "get_results", params, nil, &out); err != nil {
		return Results{}, err
	}
	return out, nil
}

// HealthCheck calls the service's readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var out json.RawMessage
	return c.do(ctx, "ready", http.MethodGet, "is_ready", nil, nil, &out)
}

func (c *Client) do(ctx context.Context, op, method, path string, params, form url.Values, out any) error {
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
		return fmt.Errorf("smqtk %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues("smqtk", op, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("smqtk %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequestDuration.WithLabelValues("smqtk", op, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("IQR request failed", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("smqtk %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("smqtk %s: decode response: %w", op, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
