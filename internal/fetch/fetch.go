// Package fetch is the single HTTP entry point for every adapter and the
// collector. It retries transient faults only (network errors, 429, 5xx)
// with a linear backoff, decodes gzip/brotli bodies, and reports missing
// resources as absence rather than errors.
package fetch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultAttempts is the total number of tries per request.
	DefaultAttempts = 4

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	jsonBackoffBase = 400 * time.Millisecond
	htmlBackoffBase = 500 * time.Millisecond

	requestTimeout = 20 * time.Second
)

// Client wraps two retrying HTTP clients, one tuned for JSON endpoints
// and one for HTML pages (the HTML backoff base is slightly longer).
type Client struct {
	json      *retryablehttp.Client
	html      *retryablehttp.Client
	userAgent string
}

// New builds a Client performing up to attempts tries per request.
// attempts <= 0 selects DefaultAttempts.
func New(attempts int) *Client {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Client{
		json:      newRetryClient(attempts, jsonBackoffBase),
		html:      newRetryClient(attempts, htmlBackoffBase),
		userAgent: defaultUserAgent,
	}
}

func newRetryClient(attempts int, base time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: requestTimeout}
	c.RetryMax = attempts - 1
	c.RetryWaitMin = base
	c.RetryWaitMax = base * time.Duration(attempts)
	c.Logger = nil
	c.CheckRetry = checkRetry
	c.Backoff = linearBackoff
	// Keep the last response around so callers can inspect the status
	// after retries are exhausted.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// checkRetry retries network failures, 429, and any 5xx. Every other
// status, including 4xx, is final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// linearBackoff sleeps base*(n+1) before the n-th retry.
func linearBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	d := min * time.Duration(attemptNum+1)
	if d > max {
		d = max
	}
	return d
}

// JSON fetches rawURL and decodes the body into target. ok is false when
// the resource is missing, the request kept failing, or the body did not
// decode; transport faults never surface as errors.
func (c *Client) JSON(ctx context.Context, rawURL string, headers map[string]string, target any) bool {
	ok, _ := c.JSONStatus(ctx, rawURL, headers, target)
	return ok
}

// JSONStatus is JSON plus the final HTTP status (0 on network failure),
// which the English primary adapter needs to tell unrecoverable auth
// errors apart from ordinary misses.
func (c *Client) JSONStatus(ctx context.Context, rawURL string, headers map[string]string, target any) (bool, int) {
	body, status := c.do(ctx, c.json, rawURL, headers, "application/json")
	if body == nil {
		return false, status
	}
	if err := json.Unmarshal(body, target); err != nil {
		return false, status
	}
	return true, status
}

// HTML fetches rawURL and returns the page body, or "" when missing.
func (c *Client) HTML(ctx context.Context, rawURL string, headers map[string]string) string {
	body, _ := c.do(ctx, c.html, rawURL, headers, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return string(body)
}

func (c *Client) do(ctx context.Context, rc *retryablehttp.Client, rawURL string, headers map[string]string, accept string) ([]byte, int) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := rc.Do(req)
	if resp == nil {
		return nil, 0
	}
	defer resp.Body.Close()
	if err != nil || resp.StatusCode/100 != 2 {
		return nil, resp.StatusCode
	}

	reader, err := bodyReader(resp)
	if err != nil {
		return nil, resp.StatusCode
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode
	}
	return body, resp.StatusCode
}

// bodyReader unwraps the response body according to Content-Encoding.
// We advertise gzip and brotli ourselves, so the transport does not
// transparently decompress for us.
func bodyReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
