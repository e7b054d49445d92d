package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsroom/news-collector/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("NAVER_CLIENT_ID", "id")
	t.Setenv("NAVER_CLIENT_SECRET", "secret")
	t.Setenv("IMAGE_BUCKET", "news-images")
	t.Setenv("CDN_BASE_URL", "https://cdn.example.com/")
}

func TestLoadCollectorDefaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{
		"ELASTICSEARCH_ADDR", "ELASTICSEARCH_INDEX", "NAVER_SEARCH_URL",
		"COLLECTOR_KEYWORDS", "COLLECTOR_KEYWORDS_FILE", "COLLECTOR_DISPLAY",
		"COLLECTOR_WORKERS", "COLLECTOR_KEYWORD_DELAY", "COLLECTOR_RATE_POLICY",
		"COLLECTOR_SEARCH_RETRIES", "COLLECTOR_INTERVAL", "KAFKA_BROKERS",
		"KAFKA_TOPIC", "AWS_REGION", "S3_ENDPOINT", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadCollector()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "news", cfg.ElasticsearchIndex)
	require.Equal(t, "https://openapi.naver.com/v1/search/news.json", cfg.NaverSearchURL)
	require.Equal(t, []config.Keyword{{Term: "비트코인"}}, cfg.Keywords)
	require.Equal(t, 10, cfg.Display)
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, time.Second, cfg.KeywordDelay)
	require.Equal(t, "fixed", cfg.RatePolicy)
	require.Equal(t, 3, cfg.SearchRetries)
	require.Equal(t, time.Hour, cfg.Interval)
	require.Equal(t, 10*time.Second, cfg.ArticleFetchTimeout)
	require.Equal(t, 30*time.Second, cfg.ImageFetchTimeout)
	require.Equal(t, 10*time.Second, cfg.StoreWriteTimeout)
	require.Equal(t, "https://cdn.example.com", cfg.CDNBaseURL)
	require.Equal(t, "ap-northeast-2", cfg.AWSRegion)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.EventsEnabled())
	require.Equal(t, "news_collected", cfg.KafkaTopic)
}

func TestLoadCollectorOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("COLLECTOR_KEYWORDS", "AI, bitcoin ,,")
	t.Setenv("COLLECTOR_DISPLAY", "50")
	t.Setenv("COLLECTOR_WORKERS", "2")
	t.Setenv("COLLECTOR_KEYWORD_DELAY", "250ms")
	t.Setenv("COLLECTOR_RATE_POLICY", "Token")
	t.Setenv("COLLECTOR_INTERVAL", "15m")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")

	cfg, err := config.LoadCollector()
	require.NoError(t, err)

	require.Equal(t, []config.Keyword{{Term: "AI"}, {Term: "bitcoin"}}, cfg.Keywords)
	require.Equal(t, 50, cfg.Display)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, 250*time.Millisecond, cfg.KeywordDelay)
	require.Equal(t, "token", cfg.RatePolicy)
	require.Equal(t, 15*time.Minute, cfg.Interval)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.KafkaBrokers)
	require.True(t, cfg.EventsEnabled())
	require.Equal(t, "http://minio:9000", cfg.S3Endpoint)
}

func TestLoadCollectorKeywordsFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "keywords.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[keywords]]
term = "비트코인"
count = 30

[[keywords]]
term = "이더리움"

[[keywords]]
term = "  "
`), 0o600))
	t.Setenv("COLLECTOR_KEYWORDS_FILE", path)
	t.Setenv("COLLECTOR_KEYWORDS", "ignored")

	cfg, err := config.LoadCollector()
	require.NoError(t, err)
	require.Equal(t, []config.Keyword{{Term: "비트코인", Count: 30}, {Term: "이더리움"}}, cfg.Keywords)
}

func TestLoadKeywordsFileErrors(t *testing.T) {
	_, err := config.LoadKeywordsFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o600))
	_, err = config.LoadKeywordsFile(empty)
	require.Error(t, err)
}

func TestLoadCollectorValidation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"missing client id", "NAVER_CLIENT_ID", ""},
		{"missing bucket", "IMAGE_BUCKET", ""},
		{"missing cdn", "CDN_BASE_URL", ""},
		{"display too large", "COLLECTOR_DISPLAY", "101"},
		{"zero workers", "COLLECTOR_WORKERS", "0"},
		{"unknown policy", "COLLECTOR_RATE_POLICY", "leaky"},
		{"zero retries", "COLLECTOR_SEARCH_RETRIES", "0"},
		{"negative interval", "COLLECTOR_INTERVAL", "-1m"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			_, err := config.LoadCollector()
			require.Error(t, err)
		})
	}
}

func TestLoadAPI(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "60")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 60, cfg.MaxPage)
}

func TestLoadAPIValidation(t *testing.T) {
	t.Setenv("API_PAGE_SIZE", "50")
	t.Setenv("API_MAX_PAGE_SIZE", "20")
	_, err := config.LoadAPI()
	require.Error(t, err)

	t.Setenv("API_PAGE_SIZE", "20")
	t.Setenv("API_MAX_PAGE_SIZE", "500")
	_, err = config.LoadAPI()
	require.Error(t, err)
}
