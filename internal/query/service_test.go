package query_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newsroom/news-collector/internal/models"
	"github.com/newsroom/news-collector/internal/query"
)

type memStore struct {
	items   []models.NewsItem
	err     error
	scanned []int
}

func (m *memStore) Scan(_ context.Context, limit int, keyword string) ([]models.NewsItem, int64, error) {
	m.scanned = append(m.scanned, limit)
	if m.err != nil {
		return nil, 0, m.err
	}
	matched := make([]models.NewsItem, 0, len(m.items))
	for _, item := range m.items {
		if keyword == "" || item.Keyword == keyword {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UID > matched[j].UID })
	total := int64(len(matched))
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memStore) Count(context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.items)), nil
}

func seed(n int, keyword func(i int) string) *memStore {
	store := &memStore{}
	for i := 0; i < n; i++ {
		store.items = append(store.items, models.NewsItem{
			UID:     fmt.Sprintf("20240203_0405%02d_%08x", i, i),
			Keyword: keyword(i),
			Source:  models.SourceNaverAPI,
		})
	}
	return store
}

func uids(items []models.NewsItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.UID)
	}
	return out
}

func TestGetNewsPaginates(t *testing.T) {
	store := seed(25, func(int) string { return "ai" })
	svc := query.New(store)
	ctx := context.Background()

	first, err := svc.GetNews(ctx, 10, 0, "ai")
	require.NoError(t, err)
	require.Len(t, first.Items, 10)
	require.EqualValues(t, 25, first.Total)
	require.Equal(t, "20240203_040524_00000018", first.Items[0].UID)

	last, err := svc.GetNews(ctx, 10, 20, "ai")
	require.NoError(t, err)
	require.Len(t, last.Items, 5)
	require.Equal(t, "20240203_040504_00000004", last.Items[0].UID)
	require.Equal(t, 30, store.scanned[len(store.scanned)-1])

	beyond, err := svc.GetNews(ctx, 10, 30, "ai")
	require.NoError(t, err)
	require.NotNil(t, beyond.Items)
	require.Empty(t, beyond.Items)
	require.EqualValues(t, 25, beyond.Total)
}

func TestGetNewsPagesConcatenate(t *testing.T) {
	svc := query.New(seed(25, func(int) string { return "ai" }))
	ctx := context.Background()

	for _, k := range []int{1, 4, 10, 13} {
		a, err := svc.GetNews(ctx, k, 0, "ai")
		require.NoError(t, err)
		b, err := svc.GetNews(ctx, k, k, "ai")
		require.NoError(t, err)
		both, err := svc.GetNews(ctx, 2*k, 0, "ai")
		require.NoError(t, err)

		require.Equal(t, uids(both.Items), append(uids(a.Items), uids(b.Items)...), "k=%d", k)
	}
}

func TestGetNewsFiltersByKeyword(t *testing.T) {
	svc := query.New(seed(10, func(i int) string {
		if i%2 == 0 {
			return "ai"
		}
		return "bitcoin"
	}))

	page, err := svc.GetNews(context.Background(), 100, 0, " bitcoin ")
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	require.EqualValues(t, 5, page.Total)
	for _, item := range page.Items {
		require.Equal(t, "bitcoin", item.Keyword)
	}

	all, err := svc.GetNews(context.Background(), 100, 0, "")
	require.NoError(t, err)
	require.EqualValues(t, 10, all.Total)
}

func TestGetNewsRejectsInvalidArguments(t *testing.T) {
	store := seed(3, func(int) string { return "ai" })
	svc := query.New(store)

	cases := []struct {
		name   string
		limit  int
		offset int
	}{
		{"zero limit", 0, 0},
		{"limit too large", 101, 0},
		{"negative offset", 10, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetNews(context.Background(), tc.limit, tc.offset, "")
			require.ErrorIs(t, err, query.ErrInvalidArgument)
		})
	}
	require.Empty(t, store.scanned)
}

func TestGetNewsPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("cluster down")
	svc := query.New(&memStore{err: boom})

	_, err := svc.GetNews(context.Background(), 10, 0, "")
	require.ErrorIs(t, err, boom)

	_, err = svc.Statistics(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestGetLatest(t *testing.T) {
	svc := query.New(seed(5, func(i int) string { return fmt.Sprintf("k%d", i) }))

	page, err := svc.GetLatest(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []string{"20240203_040504_00000004", "20240203_040503_00000003"}, uids(page.Items))
	require.EqualValues(t, 5, page.Total)
}

func TestStatistics(t *testing.T) {
	store := seed(6, func(i int) string {
		if i < 4 {
			return "ai"
		}
		return "bitcoin"
	})
	store.items[0].Source = ""
	svc := query.New(store)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 6, stats.TotalItems)
	require.Equal(t, 6, stats.SampleSize)
	require.Equal(t, map[string]int{"ai": 4, "bitcoin": 2}, stats.Keywords)
	require.Equal(t, map[string]int{models.SourceNaverAPI: 5, "unknown": 1}, stats.Sources)
	require.Equal(t, query.StatisticsSample, store.scanned[0])
}
