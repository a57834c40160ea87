package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const ewmaAlpha = 0.2

// Options tunes the underlying HTTP client.
type Options struct {
	// Timeout bounds one request end to end. Zero leaves it to the caller's
	// context (the circuit breaker sets the deadline in normal operation).
	Timeout time.Duration
	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
}

// Client fetches JSON documents from one origin.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mutex            sync.Mutex
	isHealthy        bool
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

// New creates a client for baseURL. Paths passed to Fetch are appended to it
// verbatim. The client starts healthy.
func New(baseURL *url.URL, opts Options) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		isHealthy: true,
	}
}

// URL returns the origin base URL.
func (c *Client) URL() *url.URL {
	return c.baseURL
}

// Fetch GETs base+path and returns the raw body once it is known to be JSON.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()

	res, err := c.get(ctx, path, "application/json")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		c.RecordResponse(time.Since(start))
		return nil, &StatusError{Code: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	c.RecordResponse(time.Since(start))

	if !json.Valid(body) {
		return nil, ErrMalformedBody
	}
	return body, nil
}

// Probe GETs base+path and succeeds on any 2xx answer.
func (c *Client) Probe(ctx context.Context, path string) error {
	res, err := c.get(ctx, path, "")
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Code: res.StatusCode}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, accept string) (*http.Response, error) {
	target := c.resolve(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %q: %w", ErrTransport, target, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return res, nil
}

func (c *Client) resolve(path string) string {
	base := strings.TrimSuffix(c.baseURL.String(), "/")
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return base + path
}

// IsHealthy returns the last status reported by the health prober.
func (c *Client) IsHealthy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isHealthy
}

// SetHealthy updates the health flag and reports whether it changed.
func (c *Client) SetHealthy(healthy bool) (changed bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isHealthy == healthy {
		return false
	}
	c.isHealthy = healthy
	return true
}

// RecordResponse folds one response time into the moving average.
func (c *Client) RecordResponse(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		c.ewmaResponseTime = duration
		c.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	c.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(c.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the moving average response time, or 0 before the first
// response.
func (c *Client) EWMATime() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		return 0
	}
	return c.ewmaResponseTime
}
