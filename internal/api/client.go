package api

import (
	"log/slog"
	"net/http"
	"time"
)

// RetryPolicy bounds retries of idempotent fallbacks.
type RetryPolicy struct {
	Max        int           // Retries after the first attempt
	Backoff    time.Duration // Initial delay, doubled per attempt
	MaxBackoff time.Duration // Cap on the doubled delay; zero means uncapped
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Max: 3, Backoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Client executes fallback descriptions against the HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates an executor that resolves fallback paths against baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL fallbacks are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithTimeout sets the per-attempt HTTP timeout. Zero keeps the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets the retry count and initial backoff.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retry.Max = max
		c.retry.Backoff = backoff
	}
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient swaps the underlying *http.Client, e.g. for custom transports.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}
