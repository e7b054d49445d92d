// Package pipeline drives one collection run: search each keyword, locate
// and archive article images, and store the resulting records.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/newsroom/news-collector/internal/events"
	"github.com/newsroom/news-collector/internal/ident"
	"github.com/newsroom/news-collector/internal/metrics"
	"github.com/newsroom/news-collector/internal/models"
	"github.com/newsroom/news-collector/internal/processing"
	"github.com/newsroom/news-collector/internal/ratelimit"
	"github.com/newsroom/news-collector/internal/search"
)

const (
	DefaultWorkers       = 5
	DefaultSearchRetries = 3
	DefaultStoreTimeout  = 10 * time.Second
	DefaultCount         = 10

	sampleSize = 3
)

// KeywordQuery is one search term and how many results to request for it.
// A zero Count falls back to Config.DefaultCount.
type KeywordQuery struct {
	Term  string
	Count int
}

// Searcher fetches raw results for one keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string, count int) ([]search.RawResult, error)
}

// ImageLocator finds a representative image on an article page.
type ImageLocator interface {
	Locate(ctx context.Context, articleURL string) (string, bool)
}

// ImageArchiver re-hosts an image and returns its CDN URL.
type ImageArchiver interface {
	Archive(ctx context.Context, imageURL, itemID string) (string, bool)
}

// Store persists finished items.
type Store interface {
	Put(ctx context.Context, item models.NewsItem) error
}

// IDSource issues the uid and id of each item.
type IDSource interface {
	NewUID() string
	NewID() string
}

// Dependencies are the collaborators of a Pipeline. Searcher, Locator,
// Archiver and Store are required; the rest have working defaults.
type Dependencies struct {
	Searcher  Searcher
	Locator   ImageLocator
	Archiver  ImageArchiver
	Store     Store
	Publisher events.Publisher
	Policy    ratelimit.Policy
	IDs       IDSource
	Metrics   *metrics.Collector
}

// Config tunes a Pipeline. Zero values take the Default* constants.
type Config struct {
	Workers       int
	SearchRetries int
	StoreTimeout  time.Duration
	DefaultCount  int
}

// Summary describes one run.
type Summary struct {
	Stored     int               `json:"total_collected"`
	Failed     int               `json:"total_failed"`
	Keywords   []string          `json:"keywords_searched"`
	Sample     []models.NewsItem `json:"sample_news"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Pipeline keeps no per-run state; each Run accumulates its own Summary.
type Pipeline struct {
	deps    Dependencies
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	backOff func() backoff.BackOff
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used for collected_at and the summary.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithBackOff overrides the wait between search attempts.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(p *Pipeline) { p.backOff = fn }
}

// New fills defaults for optional dependencies and zero Config fields.
func New(deps Dependencies, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Policy == nil {
		deps.Policy = ratelimit.NewFixedDelay(0)
	}
	if deps.IDs == nil {
		deps.IDs = ident.NewGenerator(0)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SearchRetries <= 0 {
		cfg.SearchRetries = DefaultSearchRetries
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = DefaultCount
	}

	p := &Pipeline{
		deps: deps,
		cfg:  cfg,
		log:  logger,
		now:  time.Now,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run searches every keyword in order and stores what it finds. Failures
// of a keyword or an item are logged and skipped; Run itself never fails.
// Once ctx is done no further keyword or item is started, while items
// already in flight run to completion under their own timeouts.
func (p *Pipeline) Run(ctx context.Context, queries []KeywordQuery) Summary {
	acc := &accumulator{}
	started := p.now().UTC()

	for _, q := range queries {
		term := strings.TrimSpace(q.Term)
		if term == "" {
			continue
		}
		if ctx.Err() != nil {
			p.log.Info("run canceled, skipping remaining keywords", slog.String("next", term))
			break
		}
		if err := p.deps.Policy.Wait(ctx); err != nil {
			p.log.Info("run canceled while pacing", slog.String("next", term))
			break
		}

		acc.addKeyword(term)
		count := q.Count
		if count <= 0 {
			count = p.cfg.DefaultCount
		}

		results, err := p.search(ctx, term, count)
		if err != nil {
			p.deps.Metrics.KeywordFailed()
			p.log.Warn("search failed, skipping keyword", slog.String("keyword", term), slog.Any("err", err))
			continue
		}
		p.deps.Metrics.KeywordSearched()
		p.log.Info("search completed", slog.String("keyword", term), slog.Int("results", len(results)))

		p.processItems(ctx, term, results, acc)
	}

	summary := acc.summary(started, p.now().UTC())
	p.deps.Metrics.ObserveRun(summary.Duration())
	return summary
}

func (p *Pipeline) search(ctx context.Context, keyword string, count int) ([]search.RawResult, error) {
	var results []search.RawResult
	attempt := 0

	op := func() error {
		// retries share the keyword pacing so a throttled upstream is not
		// hit faster than fresh keywords would be
		if attempt > 0 {
			if err := p.deps.Policy.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempt++
		r, err := p.deps.Searcher.Search(ctx, keyword, count)
		if err != nil {
			var apiErr *search.APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		results = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.log.Debug("search attempt failed, retrying",
			slog.String("keyword", keyword),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.Any("err", err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.cfg.SearchRetries-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processItems(ctx context.Context, keyword string, results []search.RawResult, acc *accumulator) {
	itemCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	for _, raw := range results {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a slot can free up after cancellation
			if ctx.Err() != nil {
				return nil
			}
			p.processItem(itemCtx, keyword, raw, acc)
			return nil
		})
	}

	_ = g.Wait()
}

func (p *Pipeline) processItem(ctx context.Context, keyword string, raw search.RawResult, acc *accumulator) {
	item := models.NewsItem{
		UID:          p.deps.IDs.NewUID(),
		ID:           p.deps.IDs.NewID(),
		Keyword:      keyword,
		Title:        processing.StripMarkup(raw.Title),
		Description:  processing.StripMarkup(raw.Description),
		OriginalLink: raw.OriginalLink,
		Link:         raw.Link,
		PubDate:      raw.PubDate,
		ContentType:  models.ContentTypeNews,
		Source:       models.SourceNaverAPI,
	}

	if link := strings.TrimSpace(raw.OriginalLink); link != "" {
		p.attachImage(ctx, link, &item)
	}
	item.CollectedAt = p.now().UTC()

	putCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	err := p.deps.Store.Put(putCtx, item)
	cancel()

	if err != nil {
		acc.addFailed()
		p.deps.Metrics.ItemFailed()
		p.log.Error("store item, dropping",
			slog.String("uid", item.UID),
			slog.String("keyword", keyword),
			slog.Any("err", err),
		)
		if dlErr := p.deps.Publisher.DeadLetter(ctx, item, err); dlErr != nil {
			p.log.Error("dead letter item", slog.String("uid", item.UID), slog.Any("err", dlErr))
		}
		return
	}

	acc.addStored(item)
	p.deps.Metrics.ItemStored()
	p.log.Debug("stored item", slog.String("uid", item.UID), slog.String("title", item.Title))

	if pubErr := p.deps.Publisher.Collected(ctx, item); pubErr != nil {
		p.log.Warn("publish collected item", slog.String("uid", item.UID), slog.Any("err", pubErr))
	}
}

func (p *Pipeline) attachImage(ctx context.Context, articleURL string, item *models.NewsItem) {
	imageURL, ok := p.deps.Locator.Locate(ctx, articleURL)
	p.deps.Metrics.ImageLocated(ok)
	if !ok {
		return
	}
	item.ImageURL = &imageURL

	cdnURL, ok := p.deps.Archiver.Archive(ctx, imageURL, item.UID)
	p.deps.Metrics.ImageArchived(ok)
	if ok {
		item.CDNImageURL = &cdnURL
	}
}

type accumulator struct {
	mu       sync.Mutex
	stored   int
	failed   int
	keywords []string
	sample   []models.NewsItem
}

func (a *accumulator) addKeyword(term string) {
	a.mu.Lock()
	a.keywords = append(a.keywords, term)
	a.mu.Unlock()
}

func (a *accumulator) addFailed() {
	a.mu.Lock()
	a.failed++
	a.mu.Unlock()
}

func (a *accumulator) addStored(item models.NewsItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored++
	if len(a.sample) < sampleSize {
		a.sample = append(a.sample, item)
	}
}

func (a *accumulator) summary(started, finished time.Time) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Summary{
		Stored:     a.stored,
		Failed:     a.failed,
		Keywords:   append([]string{}, a.keywords...),
		Sample:     append([]models.NewsItem(nil), a.sample...),
		StartedAt:  started,
		FinishedAt: finished,
	}
}
