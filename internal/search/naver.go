// Package search queries the Naver news search API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the Naver news search endpoint.
const DefaultBaseURL = "https://openapi.naver.com/v1/search/news.json"

const (
	MinCount = 1
	MaxCount = 100
)

// RawResult is one search hit as returned upstream. Title and Description
// still carry highlight markup.
type RawResult struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

type searchResponse struct {
	Total int         `json:"total"`
	Items []RawResult `json:"items"`
}

// APIError reports a failed search call. StatusCode is zero when the request
// never produced a response.
type APIError struct {
	Keyword    string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search %q: status %d: %s", e.Keyword, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("search %q: %v", e.Keyword, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Fetcher performs the API GET.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

// Client calls the search API with application credentials.
type Client struct {
	http         Fetcher
	baseURL      string
	clientID     string
	clientSecret string
}

// New creates a Client. An empty baseURL selects DefaultBaseURL.
func New(client Fetcher, baseURL, clientID, clientSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:         client,
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Search returns up to count results for keyword, most recent first.
// count is clamped to [MinCount, MaxCount].
func (c *Client) Search(ctx context.Context, keyword string, count int) ([]RawResult, error) {
	count = min(max(count, MinCount), MaxCount)

	params := url.Values{}
	params.Set("query", keyword)
	params.Set("display", strconv.Itoa(count))
	params.Set("start", "1")
	params.Set("sort", "date")

	res, err := c.http.Get(ctx, c.baseURL+"?"+params.Encode(), map[string]string{
		"X-Naver-Client-Id":     c.clientID,
		"X-Naver-Client-Secret": c.clientSecret,
		"Accept":                "application/json",
	})
	if err != nil {
		return nil, &APIError{Keyword: keyword, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, &APIError{
			Keyword:    keyword,
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &APIError{Keyword: keyword, Err: fmt.Errorf("decode response: %w", err)}
	}

	return parsed.Items, nil
}
