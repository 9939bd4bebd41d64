// Package backend is the HTTP client for the DNAI backend: auth, food
// image analysis, and chat completion.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/errors"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Authorizer supplies the Authorization header for authenticated calls.
// *session.Session implements it.
type Authorizer interface {
	AuthHeader() string
}

// Client talks to one backend base URL. It never retries.
type Client struct {
	baseURL string
	auth    Authorizer
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL. auth may be nil for a signed-out client.
func New(baseURL string, auth Authorizer, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op          string
	method      string
	path        string
	contentType string
	body        io.Reader
	authed      bool
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return bytes.NewReader(b), nil
}

// do sends r and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var header string
	if r.authed {
		if c.auth != nil {
			header = c.auth.AuthHeader()
		}
		if header == "" {
			return errors.NewUnauthenticated("")
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelled(r.op)
		}
		c.logger.Warn("backend request failed",
			zap.String("op", r.op),
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err))
		return errors.NewBackendUnreachable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.NewBackendUnreachable(err)
	}

	c.logger.Debug("backend request",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(body)
		c.logger.Warn("backend returned error",
			zap.String("op", r.op),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.NewUnauthenticated(detail)
		}
		return errors.NewBackend(resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewBackend(resp.StatusCode, fmt.Sprintf("malformed %s response: %v", r.op, err))
	}
	return nil
}

// errorDetail extracts the backend's "detail" message. Validation errors
// carry a list of {msg} objects instead of a string.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// HealthStatus is the /health response.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
