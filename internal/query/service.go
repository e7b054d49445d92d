// Package query answers read requests against the news store.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/newsroom/news-collector/internal/models"
)

const (
	MinLimit = 1
	MaxLimit = 100

	// StatisticsSample is how many of the newest items feed the distributions.
	StatisticsSample = 100
)

var ErrInvalidArgument = errors.New("invalid argument")

// Store is the read side of the news store.
type Store interface {
	Scan(ctx context.Context, limit int, keyword string) ([]models.NewsItem, int64, error)
	Count(ctx context.Context) (int64, error)
}

// Page is one window of items plus the total matching the filter.
type Page struct {
	Items []models.NewsItem `json:"items"`
	Total int64             `json:"total"`
}

type Statistics struct {
	TotalItems int64          `json:"total_items"`
	Keywords   map[string]int `json:"keyword_distribution"`
	Sources    map[string]int `json:"source_distribution"`
	SampleSize int            `json:"sample_size"`
}

// Service validates query arguments and reads from a Store.
type Service struct {
	store Store
}

// New returns a Service reading from store.
func New(store Store) *Service {
	return &Service{store: store}
}

// GetNews returns items [offset, offset+limit) of the newest-first listing,
// optionally restricted to one keyword. Total counts every stored item that
// matches the same filter.
func (s *Service) GetNews(ctx context.Context, limit, offset int, keyword string) (Page, error) {
	if limit < MinLimit || limit > MaxLimit {
		return Page{}, fmt.Errorf("%w: limit %d outside [%d, %d]", ErrInvalidArgument, limit, MinLimit, MaxLimit)
	}
	if offset < 0 {
		return Page{}, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, offset)
	}

	items, total, err := s.store.Scan(ctx, offset+limit, strings.TrimSpace(keyword))
	if err != nil {
		return Page{}, fmt.Errorf("scan news: %w", err)
	}

	if offset >= len(items) {
		return Page{Items: []models.NewsItem{}, Total: total}, nil
	}
	end := min(offset+limit, len(items))

	return Page{Items: items[offset:end], Total: total}, nil
}

func (s *Service) GetLatest(ctx context.Context, limit int) (Page, error) {
	return s.GetNews(ctx, limit, 0, "")
}

// Statistics reports the stored total and how the newest items spread over
// keywords and sources.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("count news: %w", err)
	}

	sample, _, err := s.store.Scan(ctx, StatisticsSample, "")
	if err != nil {
		return Statistics{}, fmt.Errorf("scan news: %w", err)
	}

	return Statistics{
		TotalItems: total,
		Keywords:   distribution(sample, func(item models.NewsItem) string { return item.Keyword }),
		Sources:    distribution(sample, func(item models.NewsItem) string { return item.Source }),
		SampleSize: len(sample),
	}, nil
}

func distribution(items []models.NewsItem, key func(models.NewsItem) string) map[string]int {
	groups := lo.GroupBy(items, func(item models.NewsItem) string {
		if k := key(item); k != "" {
			return k
		}
		return "unknown"
	})
	return lo.MapValues(groups, func(group []models.NewsItem, _ string) int { return len(group) })
}
