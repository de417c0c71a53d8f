// Package api provides the HTTP transport shared by every console
// component. It owns the base address, request timeout, JSON negotiation,
// and the mutable bearer credential; no business logic lives here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/servicechat/console/pkg/logger"
	"github.com/servicechat/console/pkg/metrics"
)

const defaultTimeout = 30 * time.Second

// Client is the configured HTTP client for the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger

	mu    sync.RWMutex
	token string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a transport bound to the backend base URL.
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthToken attaches a bearer credential to all subsequent requests.
// An empty token clears it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) authToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Get issues a GET request and decodes the JSON response into out when out
// is non-nil.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values, out any, policy RetryPolicy) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out, policy)
}

// Post issues a POST request with a JSON body and decodes the JSON response
// into out when out is non-nil.
func (c *Client) Post(ctx context.Context, op, path string, body, out any, policy RetryPolicy) error {
	return c.do(ctx, op, http.MethodPost, path, nil, body, out, policy)
}

// Health reports whether the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.Get(ctx, "health", "/healthz", nil, nil, RetryNone)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, policy RetryPolicy) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.BackendRetriesTotal.WithLabelValues(op).Inc()
			c.logger.Debug("retrying backend request",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
			)
		}
		err := c.doOnce(ctx, op, method, path, query, payload, out)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(policy.backOff(), ctx))
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, query url.Values, payload []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.authToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(op, "error", time.Since(start).Seconds())
		c.logger.Debug("backend request failed",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	metrics.RecordBackendRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	c.logger.Debug("backend response",
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var rejection struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &rejection) == nil && rejection.Error != "" {
			return &BusinessRejection{Op: op, Status: resp.StatusCode, Message: rejection.Error}
		}
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
