// Package apiclient talks to the REST side of the AgroLink backend: error and
// metric reports, and arbitrary calls that need retrying through flaky
// networks.
//
// Fetch retries transport errors and responses with status 502, 503, 504 or
// 405. The wait before attempt n+1 is n times the base delay. When every
// direct attempt failed and a proxy origin is configured, the request is sent
// once more through <proxy>/api/proxy/<path>.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultMaxAttempts = 5

	proxyPrefix     = "/api/proxy"
	maxResponseBody = 1 << 20
)

// Config configures a Client. Only BaseURL is required.
type Config struct {
	BaseURL string
	// ProxyURL is the origin serving /api/proxy. Empty disables the
	// fallback.
	ProxyURL string
	// Timeout bounds each attempt separately.
	Timeout     time.Duration
	RetryBase   time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// ViaProxy is set when the response came through the proxy fallback.
	ViaProxy bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// StatusError is returned when retries ran out on a retryable status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

type Client struct {
	base        *url.URL
	proxy       *url.URL
	timeout     time.Duration
	retryBase   time.Duration
	maxAttempts int
	http        *http.Client
	logger      logging.Logger
}

func New(cfg Config, l logging.Logger) (*Client, error) {
	base, err := parseOrigin(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:        base,
		timeout:     cfg.Timeout,
		retryBase:   cfg.RetryBase,
		maxAttempts: cfg.MaxAttempts,
		http:        cfg.HTTPClient,
		logger:      l.With("component", "apiclient"),
	}
	if cfg.ProxyURL != "" {
		if c.proxy, err = parseOrigin(cfg.ProxyURL); err != nil {
			return nil, err
		}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryBase <= 0 {
		c.retryBase = DefaultRetryBase
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", raw)
	}
	return u, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusMethodNotAllowed:
		return true
	}
	return false
}

// linearBackOff waits attempt × base between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Fetch sends body (JSON-encoded when not nil) to path. A non-retryable
// response is returned as is, whatever its status.
func (c *Client) Fetch(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var last *Response
	op := func() error {
		resp, err := c.do(ctx, method, c.resolve(c.base, path), payload)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		last = resp
		if retryableStatus(resp.StatusCode) {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{base: c.retryBase}, uint64(c.maxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		c.logger.Debug(ctx, "request failed, retrying", "method", method, "path", path, "wait", wait, "error", err)
	})
	if err == nil {
		return last, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if c.proxy == nil {
		var se *StatusError
		if errors.As(err, &se) {
			return last, err
		}
		return nil, err
	}

	c.logger.Warn(ctx, "direct attempts exhausted, trying proxy", "method", method, "path", path, "error", err)
	resp, perr := c.do(ctx, method, c.resolve(c.proxy, proxyPrefix+path), payload)
	if perr != nil {
		return nil, fmt.Errorf("proxy fallback: %w", perr)
	}
	resp.ViaProxy = true
	return resp, nil
}

func (c *Client) resolve(origin *url.URL, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin.String() + path
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
