// Package httpclient provides the JSON HTTP helper shared by all upstream
// adapters: fixed per-call timeout, transparent retry of transient faults.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/retry"
)

// callTimeout is the fixed per-HTTP-call timeout.
const callTimeout = 10 * time.Second

// Client issues JSON requests against upstream APIs. Timeouts, non-2xx
// responses and connection errors are treated as transient and retried under
// the client's policy unless a call opts out with NoRetries.
type Client struct {
	http   *http.Client
	policy retry.Policy
}

// New creates a client with the given retry policy for transient faults.
func New(policy retry.Policy) *Client {
	return &Client{
		http:   &http.Client{Timeout: callTimeout},
		policy: policy,
	}
}

type callConfig struct {
	noRetries bool
	headers   http.Header
}

// CallOption customizes a single request.
type CallOption func(*callConfig)

// NoRetries surfaces the first failure instead of retrying. Used for calls
// whose failure the caller handles with a fallback.
func NoRetries() CallOption {
	return func(c *callConfig) { c.noRetries = true }
}

// WithHeaders attaches extra headers to the request.
func WithHeaders(headers http.Header) CallOption {
	return func(c *callConfig) { c.headers = headers }
}

// GetJSON issues a GET request and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodGet, rawURL, params, nil, out, opts...)
}

// PostJSON issues a POST request with a JSON body and decodes the response
// into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPost, rawURL, nil, body, out, opts...)
}

func (c *Client) do(ctx context.Context, method, rawURL string, params url.Values, body, out any, opts ...CallOption) error {
	cfg := &callConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	policy := c.policy
	if cfg.noRetries {
		policy = retry.Once
	}

	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		return c.attempt(ctx, method, target, encoded, cfg.headers, out)
	})
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, headers http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewTransient(fmt.Sprintf("%s %s", method, target), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTransient(fmt.Sprintf("read %s", target), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"url":    target,
		}).Warn("upstream returned non-2xx response")
		return apperrors.NewTransient(
			fmt.Sprintf("%s %s", method, target),
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload, 256)),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
