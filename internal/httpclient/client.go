// Package httpclient is the outbound HTTP client for article pages, images
// and the search API.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// BrowserUserAgent is sent to article and image origins; many publishers
// reject requests without a browser-like identity.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Client is a timeout-bounded HTTP client that stamps every request with a
// fixed client identity.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a client with the given timeout and the browser user agent.
func New(timeout time.Duration) *Client {
	return NewWithTransport(timeout, nil)
}

// NewWithTransport creates a client using transport (nil means the default).
func NewWithTransport(timeout time.Duration, transport http.RoundTripper) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		userAgent:  BrowserUserAgent,
	}
}

// Get performs a GET request. Callers must close the response body.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.httpClient.Do(req)
}
