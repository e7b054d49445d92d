// Package elasticsearch stores news records in a single Elasticsearch index
// keyed by uid.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/newsroom/news-collector/internal/models"
)

// MaxScanWindow is the deepest page a single scan can reach (the index's
// default max_result_window). Reads past it come back empty; there is no
// cursor-based pagination.
const MaxScanWindow = 10_000

// ErrStorageWrite marks a failed Put.
var ErrStorageWrite = errors.New("storage write failed")

const indexMapping = `{
  "mappings": {
    "properties": {
      "uid":           {"type": "keyword"},
      "id":            {"type": "keyword"},
      "keyword":       {"type": "keyword"},
      "title":         {"type": "text"},
      "description":   {"type": "text"},
      "originallink":  {"type": "keyword", "index": false},
      "link":          {"type": "keyword", "index": false},
      "pubDate":       {"type": "keyword", "index": false},
      "image_url":     {"type": "keyword", "index": false},
      "cdn_image_url": {"type": "keyword", "index": false},
      "collected_at":  {"type": "date"},
      "content_type":  {"type": "keyword"},
      "source":        {"type": "keyword"}
    }
  }
}`

// Client stores news items in one Elasticsearch index keyed by uid.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// another process may have won the race
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("index created", slog.String("index", c.index))
	return nil
}

// Put writes item under its uid. Writing the same uid again replaces the
// previous document.
func (c *Client) Put(ctx context.Context, item models.NewsItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: marshal item: %w", ErrStorageWrite, err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: item.UID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("%w: index %s: %w", ErrStorageWrite, item.UID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%w: index %s: %s", ErrStorageWrite, item.UID, strings.TrimSpace(string(body)))
	}

	return nil
}

// Scan returns up to limit items ordered by uid descending, optionally
// restricted to one exact keyword, together with the number of stored items
// matching the same filter.
func (c *Client) Scan(ctx context.Context, limit int, keyword string) ([]models.NewsItem, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("scan limit must be positive")
	}
	if limit > MaxScanWindow {
		limit = MaxScanWindow
	}

	body := map[string]any{
		"size":             limit,
		"track_total_hits": true,
		"query":            keywordQuery(keyword),
		"sort": []map[string]any{
			{"uid": map[string]any{"order": "desc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, 0, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.NewsItem `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.NewsItem, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return items, parsed.Hits.Total.Value, nil
}

// Count returns the number of stored items.
func (c *Client) Count(ctx context.Context) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.index),
	)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}

	return parsed.Count, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func keywordQuery(keyword string) map[string]any {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"keyword": keyword}},
			},
		},
	}
}
