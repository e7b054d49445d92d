package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/newsroom/news-collector/internal/archiver"
	"github.com/newsroom/news-collector/internal/config"
	"github.com/newsroom/news-collector/internal/elasticsearch"
	"github.com/newsroom/news-collector/internal/events"
	"github.com/newsroom/news-collector/internal/httpclient"
	"github.com/newsroom/news-collector/internal/ident"
	"github.com/newsroom/news-collector/internal/imagelocator"
	"github.com/newsroom/news-collector/internal/logger"
	"github.com/newsroom/news-collector/internal/metrics"
	"github.com/newsroom/news-collector/internal/models"
	"github.com/newsroom/news-collector/internal/objectstore"
	"github.com/newsroom/news-collector/internal/pipeline"
	"github.com/newsroom/news-collector/internal/ratelimit"
	"github.com/newsroom/news-collector/internal/search"
)

const searchTimeout = 10 * time.Second

func main() {
	log := logger.New("collector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newApp(log).RunContext(ctx, os.Args); err != nil {
		log.Error("collector failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newApp(log *slog.Logger) *cli.App {
	keywordFlags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "keyword",
			Aliases: []string{"k"},
			Usage:   "search term to collect, repeatable; overrides COLLECTOR_KEYWORDS",
		},
		&cli.StringFlag{
			Name:  "keywords-file",
			Usage: "TOML file with [[keywords]] entries; overrides COLLECTOR_KEYWORDS_FILE",
		},
	}

	return &cli.App{
		Name:  "collector",
		Usage: "collect keyword news, re-host article images and store the records",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "collect once and exit",
				Flags: keywordFlags,
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					col, err := build(c.Context, cfg, log, prometheus.NewRegistry())
					if err != nil {
						return err
					}
					defer col.Close()

					col.runOnce(c.Context)
					return nil
				},
			},
			{
				Name:  "schedule",
				Usage: "collect repeatedly on an interval until stopped",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "time between runs; overrides COLLECTOR_INTERVAL",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "serve /metrics on this address; overrides METRICS_ADDR",
					},
				}, keywordFlags...),
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}

					reg := prometheus.NewRegistry()
					col, err := build(c.Context, cfg, log, reg)
					if err != nil {
						return err
					}
					defer col.Close()

					if cfg.MetricsAddr != "" {
						serveMetrics(c.Context, cfg.MetricsAddr, reg, log)
					}

					schedule(c.Context, log, cfg.Interval, func(ctx context.Context) {
						col.runOnce(ctx)
					})
					return nil
				},
			},
		},
	}
}

type overrides struct {
	keywords     []string
	keywordsFile string
	interval     time.Duration
	metricsAddr  string
}

func overridesFrom(c *cli.Context) overrides {
	o := overrides{
		keywords:     c.StringSlice("keyword"),
		keywordsFile: c.String("keywords-file"),
	}
	if c.IsSet("interval") {
		o.interval = c.Duration("interval")
	}
	if c.IsSet("metrics-addr") {
		o.metricsAddr = c.String("metrics-addr")
	}
	return o
}

// apply layers command-line values over the environment config. Explicit
// keywords win over a keywords file.
func (o overrides) apply(cfg *config.Collector) error {
	if o.keywordsFile != "" {
		keywords, err := config.LoadKeywordsFile(o.keywordsFile)
		if err != nil {
			return err
		}
		cfg.Keywords = keywords
	}
	if len(o.keywords) > 0 {
		cfg.Keywords = config.KeywordsFromList(o.keywords)
	}
	if o.interval != 0 {
		cfg.Interval = o.interval
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	return cfg.Validate()
}

func loadConfig(c *cli.Context) (*config.Collector, error) {
	cfg, err := config.LoadCollector()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := overridesFrom(c).apply(cfg); err != nil {
		return nil, fmt.Errorf("apply flags: %w", err)
	}
	return cfg, nil
}

type collector struct {
	log       *slog.Logger
	pipeline  *pipeline.Pipeline
	queries   []pipeline.KeywordQuery
	publisher events.Publisher
}

func build(ctx context.Context, cfg *config.Collector, log *slog.Logger, reg prometheus.Registerer) (*collector, error) {
	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch: %w", err)
	}
	if err := waitForStore(ctx, esClient, log, startupBackOff()); err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	log.Info("connected to elasticsearch")

	if err := esClient.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure index: %w", err)
	}

	bucket, err := objectstore.NewS3(ctx, objectstore.Options{
		Bucket:   cfg.ImageBucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	log.Info("archiving images", slog.String("bucket", bucket.Bucket()), slog.String("cdn", cfg.CDNBaseURL))

	policy, err := ratelimit.New(cfg.RatePolicy, cfg.KeywordDelay)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.EventsEnabled() {
		publisher = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info("publishing collected items",
			slog.String("topic", cfg.KafkaTopic),
			slog.String("dlq_topic", cfg.KafkaTopic+events.DeadLetterSuffix),
		)
	}

	p := pipeline.New(pipeline.Dependencies{
		Searcher:  search.New(httpclient.New(searchTimeout), cfg.NaverSearchURL, cfg.NaverClientID, cfg.NaverClientSecret),
		Locator:   imagelocator.New(httpclient.New(cfg.ArticleFetchTimeout), log),
		Archiver:  archiver.New(httpclient.New(cfg.ImageFetchTimeout), bucket, cfg.CDNBaseURL, log),
		Store:     esClient,
		Publisher: publisher,
		Policy:    policy,
		IDs:       ident.NewGenerator(2 * time.Second),
		Metrics:   metrics.New(reg),
	}, pipeline.Config{
		Workers:       cfg.Workers,
		SearchRetries: cfg.SearchRetries,
		StoreTimeout:  cfg.StoreWriteTimeout,
		DefaultCount:  cfg.Display,
	}, log)

	return &collector{
		log:       log,
		pipeline:  p,
		queries:   keywordQueries(cfg.Keywords),
		publisher: publisher,
	}, nil
}

func (c *collector) runOnce(ctx context.Context) pipeline.Summary {
	c.log.Info("collection run starting", slog.Int("keywords", len(c.queries)))
	summary := c.pipeline.Run(ctx, c.queries)
	logSummary(c.log, summary)
	return summary
}

func (c *collector) Close() error {
	return c.publisher.Close()
}

func keywordQueries(keywords []config.Keyword) []pipeline.KeywordQuery {
	return lo.Map(keywords, func(k config.Keyword, _ int) pipeline.KeywordQuery {
		return pipeline.KeywordQuery{Term: k.Term, Count: k.Count}
	})
}

func logSummary(log *slog.Logger, s pipeline.Summary) {
	log.Info("collection run completed",
		slog.Int("stored", s.Stored),
		slog.Int("failed", s.Failed),
		slog.Any("keywords", s.Keywords),
		slog.Duration("duration", s.Duration()),
		slog.Any("sample", lo.Map(s.Sample, func(item models.NewsItem, _ int) string {
			return item.Title
		})),
	)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func startupBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 10)
}

// waitForStore pings until the store answers, b gives up, or ctx is done.
func waitForStore(ctx context.Context, store pinger, log *slog.Logger, b backoff.BackOff) error {
	attempt := 0
	op := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return store.Ping(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// schedule runs immediately and then on every tick until ctx is done. A run
// that overruns the interval delays the next one; ticks are not queued.
func schedule(ctx context.Context, log *slog.Logger, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("collector scheduled", slog.Duration("interval", interval))
	run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", slog.Any("err", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown", slog.Any("err", err))
		}
	}()
}
