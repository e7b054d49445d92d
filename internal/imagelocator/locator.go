// Package imagelocator finds a representative image URL on an article page.
package imagelocator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxPageBytes = 5 << 20

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// lazy-load attributes tried after src, in order
var sourceAttrs = []string{"src", "data-src", "data-original"}

// Fetcher performs the article GET.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

// Locator fetches article pages and applies extraction strategies.
type Locator struct {
	client     Fetcher
	strategies []Strategy
	log        *slog.Logger
}

// New creates a Locator with DefaultStrategies.
func New(client Fetcher, logger *slog.Logger) *Locator {
	return NewWithStrategies(client, logger, DefaultStrategies()...)
}

// NewWithStrategies creates a Locator evaluating strategies in the given order.
func NewWithStrategies(client Fetcher, logger *slog.Logger, strategies ...Strategy) *Locator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Locator{client: client, strategies: strategies, log: logger}
}

// Locate returns the first acceptable image URL found on articleURL. Every
// failure is soft: it is logged and reported as not found.
func (l *Locator) Locate(ctx context.Context, articleURL string) (string, bool) {
	base, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil || !isHTTP(base) {
		l.log.Debug("skip locate, bad article url", slog.String("url", articleURL))
		return "", false
	}

	doc, err := l.fetch(ctx, base.String())
	if err != nil {
		l.log.Debug("fetch article failed", slog.String("url", articleURL), slog.Any("err", err))
		return "", false
	}

	return l.FromDocument(doc, base)
}

// FromDocument applies the strategies to an already parsed page.
func (l *Locator) FromDocument(doc *goquery.Document, base *url.URL) (string, bool) {
	for _, strategy := range l.strategies {
		sel := strategy.Select(doc)
		if sel == nil || sel.Length() == 0 {
			continue
		}

		raw := candidate(sel)
		if raw == "" {
			continue
		}

		imageURL, ok := normalize(raw, base)
		if !ok || !hasImageExtension(imageURL) {
			continue
		}

		l.log.Debug("image located",
			slog.String("strategy", strategy.Name),
			slog.String("image_url", imageURL),
		)
		return imageURL, true
	}

	return "", false
}

func (l *Locator) fetch(ctx context.Context, articleURL string) (*goquery.Document, error) {
	res, err := l.client.Get(ctx, articleURL, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	return goquery.NewDocumentFromReader(io.LimitReader(res.Body, maxPageBytes))
}

func candidate(sel *goquery.Selection) string {
	switch goquery.NodeName(sel) {
	case "img":
		for _, attr := range sourceAttrs {
			if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" {
				return v
			}
		}
	case "meta":
		return strings.TrimSpace(sel.AttrOr("content", ""))
	}
	return ""
}

// normalize turns protocol-relative and root-relative references into
// absolute URLs. Other relative forms are rejected.
func normalize(raw string, base *url.URL) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "/"):
		ref, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		return base.ResolveReference(ref).String(), true
	}

	u, err := url.Parse(raw)
	if err != nil || !isHTTP(u) {
		return "", false
	}
	return raw, true
}

func hasImageExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
