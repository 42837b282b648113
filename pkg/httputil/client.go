package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wonny/intent/pkg/logger"
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 8 << 20

// Client is the outbound HTTP client of every source adapter.
// It performs exactly one attempt per call; retries belong to the caller so the
// circuit breaker sees one outcome per poll.
// ⭐ SSOT: all outbound HTTP goes through this client
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	userAgent  string
}

// New creates a client with the given per-request timeout
func New(log *logger.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithModule("httputil"),
		userAgent:  "intent-collector/1.0",
	}
}

// WithUserAgent sets the User-Agent header sent on every request
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

// WithHTTPClient swaps the underlying http.Client (tests, custom transports)
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// StatusError is returned for any non-2xx response
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// TransportError is a failure before a response was received (DNS, connect, timeout)
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return "request timed out: " + e.Err.Error()
	}
	return "request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is returned when a 2xx body cannot be decoded
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Get performs one GET. Non-2xx responses are returned together with a *StatusError.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		c.logger.WithError(err).WithField("url", url).Debug("HTTP request failed")
		return nil, &TransportError{Err: err, Timeout: isTimeout(ctx, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(ctx, err)}
	}

	c.logger.WithFields(map[string]any{
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    time.Since(start).String(),
	}).Debug("HTTP request completed")

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, URL: url}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, URL: url}
	}
	return out, nil
}

// GetJSON performs one GET and decodes a 2xx body into dest
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, dest any) (*Response, error) {
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}

	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return resp, &DecodeError{Err: err}
	}
	return resp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryableStatus reports whether a status code is worth another attempt
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
}
