/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package teamwater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/C3lEst1512/teamwater-data/internal/retry"
)

const (
	donationsPath   = "/donations"
	totalRaisedPath = "/total_raised"

	defaultUserAgent = "teamwater-data/1.0"

	// maxErrorBody bounds how much of an error response is kept for
	// the error message.
	maxErrorBody = 512
)

// APIError is a non-2xx response from the campaign API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to the TeamWater campaign API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	retryCfg   retry.Config
	metrics    *apiMetrics
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default has
// a 10 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  defaultUserAgent,
		retryCfg:   retry.Default(),
		metrics:    newAPIMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.retryCfg.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	return c, nil
}

// Donations fetches the recent donations feed.
func (c *Client) Donations(ctx context.Context) ([]Donation, error) {
	var donations []Donation
	if err := c.get(ctx, donationsPath, &donations); err != nil {
		return nil, err
	}
	return donations, nil
}

// TotalRaised fetches the campaign-wide running total.
func (c *Client) TotalRaised(ctx context.Context) (Total, error) {
	var total Total
	if err := c.get(ctx, totalRaisedPath, &total); err != nil {
		return Total{}, err
	}
	return total, nil
}

// Probe verifies both endpoints respond before a collection loop
// starts, so misconfiguration fails fast instead of an hour in.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.Donations(ctx); err != nil {
		return fmt.Errorf("probing donations endpoint: %w", err)
	}
	if _, err := c.TotalRaised(ctx); err != nil {
		return fmt.Errorf("probing total_raised endpoint: %w", err)
	}
	return nil
}

// get performs a GET with retry and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	start := time.Now()
	_, err := retry.Do(ctx, c.retryCfg, "GET "+path, isRetryable, func() (struct{}, error) {
		return struct{}{}, c.getOnce(ctx, path, out)
	})
	c.metrics.recordRequest(ctx, path, time.Since(start), err)
	return err
}

func (c *Client) getOnce(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	clog.FromContext(ctx).Debugf("GET %s succeeded", path)
	return nil
}

// isRetryable classifies which request failures are worth another
// attempt. Rate limits and server-side errors recover on their own;
// client errors and cancellation do not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport-level failures (resets, DNS blips, truncated bodies)
	// are treated as transient.
	return true
}
