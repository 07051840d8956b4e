package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rickgao/rtu-client/internal/request"
	"github.com/rickgao/rtu-client/internal/version"
)

// APIError represents a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Response is a successful HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is the asynchronous completion of Go.
type Result struct {
	Response *Response
	Err      error
}

// Execute performs fb, retrying idempotent verbs on retryable errors.
func (c *Client) Execute(ctx context.Context, fb *request.Fallback) (*Response, error) {
	if fb == nil {
		return nil, errors.New("nil fallback")
	}

	retries := c.retry.Max
	if !idempotent(fb.Method) {
		retries = 0
	}

	resp, err := c.doWithRetry(ctx, fb, retries)
	if err != nil {
		c.logger.Warn("fallback request failed",
			"method", fb.Method,
			"path", fb.Path,
			"error", err,
		)
		return nil, err
	}
	return resp, nil
}

// Go performs fb on a new goroutine and delivers exactly one Result.
func (c *Client) Go(ctx context.Context, fb *request.Fallback) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		resp, err := c.Execute(ctx, fb)
		out <- Result{Response: resp, Err: err}
	}()
	return out
}

// Do performs fb and decodes a JSON response into result. A nil result discards the body.
func (c *Client) Do(ctx context.Context, fb *request.Fallback, result any) error {
	resp, err := c.Execute(ctx, fb)
	if err != nil {
		return err
	}
	if result == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// doRequest performs a single HTTP attempt.
func (c *Client) doRequest(ctx context.Context, fb *request.Fallback) (*Response, error) {
	fullURL, err := fb.URL(c.baseURL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if fb.Body != nil {
		body = bytes.NewReader(fb.Body)
	}

	req, err := http.NewRequestWithContext(ctx, fb.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range fb.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, fb *request.Fallback, maxRetries int) (*Response, error) {
	var lastErr error
	backoff := c.retry.Backoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", fb.Path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
			if c.retry.MaxBackoff > 0 && backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		resp, err := c.doRequest(ctx, fb)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	if maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead:
		return true
	}
	return false
}
