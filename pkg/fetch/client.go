package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/ratelimit"
	"eaafetch/pkg/retry"

	"github.com/PuerkitoBio/goquery"
)

// Client retrieves gallery pages and archive bodies. Every request takes a
// token from the shared limiter; retryable failures are retried.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the retry policy for retryable fetch errors
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.headers["User-Agent"] = ua
		}
	}
}

// NewClient creates a new fetch client
func NewClient(timeout time.Duration, limiter ratelimit.Limiter, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      "eaafetch/1.0",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		limiter: limiter,
		retry:   &retry.Config{MaxAttempts: 1},
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// get performs one rate limited GET and checks the status.
// The caller owns the returned body.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.NewFetchError(url, 0, err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.NewFetchError(url, 0, err)
	}

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, errs.NewFetchError(url, resp.StatusCode, nil)
	}

	return resp, nil
}

// Document fetches url and parses it into a queryable document
func (c *Client) Document(ctx context.Context, url string) (*goquery.Document, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) (*goquery.Document, error) {
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A body cut short by the network is worth another attempt
			return nil, errs.NewFetchError(url, 0, fmt.Errorf("reading document: %w", err))
		}
		doc.Url = resp.Request.URL
		return doc, nil
	}, c.retry)
}

// Open issues a GET for a binary resource. Only establishing the response is
// retried; the caller streams and closes the body.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}, c.retry)
}
