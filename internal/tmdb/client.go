// Package tmdb provides a rate-limited client for The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://api.themoviedb.org/3"
	DefaultImageURL   = "https://image.tmdb.org/t/p"
	DefaultTimeout    = 30 * time.Second
	DefaultPerSecond  = 39 // dispatch budget; TMDB tolerates ~40 req/s
	DefaultConcurrent = 10 // in-flight ceiling
)

// Client issues throttled GET requests against the TMDB API. A single
// instance is constructed at startup and injected wherever upstream calls are
// made; the limiter and semaphore it carries are the process-wide budget.
//
// Two independent constraints hold at all times: at most Concurrent calls are
// in flight, and dispatches never exceed the per-second budget. Callers over
// budget queue on the limiter (FIFO, never rejected) and resume as capacity
// frees up; context cancellation releases them.
type Client struct {
	baseURL    string
	imageURL   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	sem        chan struct{}
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests point it at a local server).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithImageURL overrides the image CDN base URL.
func WithImageURL(imageURL string) Option {
	return func(c *Client) { c.imageURL = imageURL }
}

// WithRateLimit sets the per-second dispatch budget.
func WithRateLimit(perSecond int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithConcurrency sets the in-flight ceiling.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.sem = make(chan struct{}, n) }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a TMDB client authenticated with the given bearer token.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		imageURL:   DefaultImageURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		// Burst 1 spaces dispatches evenly instead of front-loading the
		// whole budget, so a rolling one-second window stays inside it.
		limiter: rate.NewLimiter(rate.Limit(DefaultPerSecond), 1),
		sem:     make(chan struct{}, DefaultConcurrent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpstreamError carries a non-2xx response from TMDB. The status code is
// preserved so callers can propagate it.
type UpstreamError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tmdb: %s (status %d, endpoint %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Get performs a throttled GET against an API endpoint (for example
// "/trending/movie/day") and returns the response body as opaque JSON.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    string(body),
		}
	}
	return json.RawMessage(body), nil
}

// Image streams a file from the TMDB image CDN. The caller owns the returned
// body and must close it. Only the original-size path is requested.
func (c *Client) Image(ctx context.Context, path string) (io.ReadCloser, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.imageURL+"/original"+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, "", &UpstreamError{StatusCode: resp.StatusCode, Endpoint: path, Message: resp.Status}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
