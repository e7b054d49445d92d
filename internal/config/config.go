package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Keyword is one search term with its per-run result count. A zero Count
// means the collector default.
type Keyword struct {
	Term  string `toml:"term"`
	Count int    `toml:"count"`
}

// Collector holds configuration for the ingestion job.
type Collector struct {
	Common
	NaverClientID     string
	NaverClientSecret string
	NaverSearchURL    string

	Keywords      []Keyword
	Display       int
	Workers       int
	KeywordDelay  time.Duration
	RatePolicy    string
	SearchRetries int
	Interval      time.Duration

	ArticleFetchTimeout time.Duration
	ImageFetchTimeout   time.Duration
	StoreWriteTimeout   time.Duration

	ImageBucket string
	CDNBaseURL  string
	AWSRegion   string
	S3Endpoint  string

	KafkaBrokers []string
	KafkaTopic   string
	MetricsAddr  string
}

// EventsEnabled reports whether collected items go to Kafka.
func (c *Collector) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// LoadCollector builds a Collector config from environment variables.
func LoadCollector() (*Collector, error) {
	c := &Collector{
		Common:            loadCommon(),
		NaverClientID:     getEnv("NAVER_CLIENT_ID", ""),
		NaverClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
		NaverSearchURL:    getEnv("NAVER_SEARCH_URL", "https://openapi.naver.com/v1/search/news.json"),

		Display:       getInt("COLLECTOR_DISPLAY", 10),
		Workers:       getInt("COLLECTOR_WORKERS", 5),
		KeywordDelay:  getDuration("COLLECTOR_KEYWORD_DELAY", time.Second),
		RatePolicy:    strings.ToLower(getEnv("COLLECTOR_RATE_POLICY", "fixed")),
		SearchRetries: getInt("COLLECTOR_SEARCH_RETRIES", 3),
		Interval:      getDuration("COLLECTOR_INTERVAL", time.Hour),

		ArticleFetchTimeout: getDuration("ARTICLE_FETCH_TIMEOUT", 10*time.Second),
		ImageFetchTimeout:   getDuration("IMAGE_FETCH_TIMEOUT", 30*time.Second),
		StoreWriteTimeout:   getDuration("STORE_WRITE_TIMEOUT", 10*time.Second),

		ImageBucket: getEnv("IMAGE_BUCKET", ""),
		CDNBaseURL:  strings.TrimRight(getEnv("CDN_BASE_URL", ""), "/"),
		AWSRegion:   getEnv("AWS_REGION", "ap-northeast-2"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),

		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "news_collected"),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
	}

	if path := getEnv("COLLECTOR_KEYWORDS_FILE", ""); path != "" {
		keywords, err := LoadKeywordsFile(path)
		if err != nil {
			return nil, err
		}
		c.Keywords = keywords
	} else {
		c.Keywords = KeywordsFromList(splitAndTrim(getEnv("COLLECTOR_KEYWORDS", "비트코인")))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings the collector cannot run without. It is
// exported so CLI overrides can be re-checked.
func (c *Collector) Validate() error {
	if c.NaverClientID == "" || c.NaverClientSecret == "" {
		return fmt.Errorf("NAVER_CLIENT_ID and NAVER_CLIENT_SECRET must be set")
	}
	if c.ImageBucket == "" {
		return fmt.Errorf("IMAGE_BUCKET must be set")
	}
	if c.CDNBaseURL == "" {
		return fmt.Errorf("CDN_BASE_URL must be set")
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("at least one keyword must be configured")
	}
	for _, k := range c.Keywords {
		if strings.TrimSpace(k.Term) == "" {
			return fmt.Errorf("keyword term cannot be empty")
		}
		if k.Count < 0 || k.Count > 100 {
			return fmt.Errorf("keyword %q: count must be within [1, 100]", k.Term)
		}
	}
	if c.Display < 1 || c.Display > 100 {
		return fmt.Errorf("COLLECTOR_DISPLAY must be within [1, 100]")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("COLLECTOR_WORKERS must be positive")
	}
	if c.KeywordDelay < 0 {
		return fmt.Errorf("COLLECTOR_KEYWORD_DELAY cannot be negative")
	}
	if c.RatePolicy != "fixed" && c.RatePolicy != "token" {
		return fmt.Errorf("COLLECTOR_RATE_POLICY must be fixed or token")
	}
	if c.SearchRetries <= 0 {
		return fmt.Errorf("COLLECTOR_SEARCH_RETRIES must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.ArticleFetchTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.StoreWriteTimeout <= 0 {
		return fmt.Errorf("fetch and store timeouts must be positive")
	}
	if c.EventsEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	}
	return nil
}

// LoadKeywordsFile reads a TOML file of [[keywords]] tables.
func LoadKeywordsFile(path string) ([]Keyword, error) {
	var file struct {
		Keywords []Keyword `toml:"keywords"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("read keywords file %s: %w", path, err)
	}

	out := make([]Keyword, 0, len(file.Keywords))
	for _, k := range file.Keywords {
		k.Term = strings.TrimSpace(k.Term)
		if k.Term == "" {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keywords file %s lists no keywords", path)
	}
	return out, nil
}

// KeywordsFromList turns bare terms into keywords using the default count.
func KeywordsFromList(terms []string) []Keyword {
	out := make([]Keyword, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			out = append(out, Keyword{Term: term})
		}
	}
	return out
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 || c.MaxPage > 100 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be within [1, 100]")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
