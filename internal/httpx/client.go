package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"go.uber.org/zap"
)

// StatusPolicy decides whether a non-success HTTP status is worth re-issuing.
type StatusPolicy func(status int) bool

type Client struct {
	httpClient  *http.Client
	retries     int
	userAgent   string
	backoff     Backoff
	retryStatus StatusPolicy
	logger      *zap.Logger
}

type Option func(*Client)

// WithBackoff overrides the delay schedule between attempts.
func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithRetryableStatus enables re-issuing requests answered with statuses
// accepted by policy. Without it only transport failures are retried.
func WithRetryableStatus(policy StatusPolicy) Option {
	return func(c *Client) { c.retryStatus = policy }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(timeout time.Duration, retries int, opts ...Option) *Client {
	if retries < 0 {
		retries = 0
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "solchat/1.0",
		backoff:    DefaultBackoff(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retries returns the number of re-issues allowed after the first attempt.
func (c *Client) Retries() int { return c.retries }

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.Delay(attempt)
			c.logger.Warn("retrying request",
				zap.String("host", req.URL.Host),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, clierr.Wrap(clierr.CodeCancelled, "request cancelled", ctx.Err())
			}
			lastErr = mapNetError(err)
			continue
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = clierr.Wrap(clierr.CodeTransport, "read response body", readErr)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := mapStatus(resp.StatusCode, buf)
			if c.retryStatus != nil && c.retryStatus(resp.StatusCode) {
				lastErr = statusErr
				continue
			}
			return resp.Header, statusErr
		}

		if out == nil {
			return resp.Header, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			lastErr = clierr.New(clierr.CodeTransport, "empty response body")
			continue
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return resp.Header, clierr.Wrap(clierr.CodeProtocol, "decode response JSON", err)
		}
		return resp.Header, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, clierr.New(clierr.CodeTransport, "request failed")
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return clierr.Wrap(clierr.CodeCancelled, "request cancelled", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeTransport, "request timeout", err)
	}
	return clierr.Wrap(clierr.CodeTransport, "request failed", err)
}

// statusError keeps the HTTP status behind a mapped error.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

// StatusOf returns the HTTP status that produced err, if any.
func StatusOf(err error) (int, bool) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, true
	}
	return 0, false
}

func mapStatus(status int, body []byte) error {
	return &statusError{status: status, err: statusCodeError(status, body)}
}

func statusCodeError(status int, body []byte) error {
	snippet := string(bytes.TrimSpace(body))
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return clierr.New(clierr.CodeAuth, fmt.Sprintf("authentication failed (status %d)", status))
	case status == http.StatusTooManyRequests:
		return clierr.New(clierr.CodeRateLimited, "rate limited (status 429)")
	default:
		if snippet == "" {
			return clierr.New(clierr.CodeUpstream, fmt.Sprintf("unexpected status %d", status))
		}
		return clierr.New(clierr.CodeUpstream, fmt.Sprintf("unexpected status %d: %s", status, snippet))
	}
}
