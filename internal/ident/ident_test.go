package ident_test

import (
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsroom/news-collector/internal/ident"
)

var uidPattern = regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f]{8}$`)

func TestNewUIDFormat(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	g := ident.NewGenerator(time.Minute, ident.WithClock(func() time.Time { return at }))

	uid := g.NewUID()
	require.Regexp(t, uidPattern, uid)
	require.Equal(t, "20240203_040506_", uid[:16])
}

func TestNewUIDUsesUTC(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	at := time.Date(2024, 2, 3, 9, 0, 0, 0, seoul)
	g := ident.NewGenerator(time.Minute, ident.WithClock(func() time.Time { return at }))

	require.Equal(t, "20240203_000000_", g.NewUID()[:16])
}

func TestNewUIDRedrawsCollidingSuffix(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	suffixes := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	next := 0
	g := ident.NewGenerator(time.Minute,
		ident.WithClock(func() time.Time { return at }),
		ident.WithSuffixSource(func() string {
			s := suffixes[next]
			next++
			return s
		}),
	)

	require.Equal(t, "20240203_040506_aaaaaaaa", g.NewUID())
	require.Equal(t, "20240203_040506_bbbbbbbb", g.NewUID())
	require.Equal(t, 3, next)
}

func TestNewUIDUniqueAndOrderedAcrossSeconds(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	var mu sync.Mutex
	g := ident.NewGenerator(time.Minute, ident.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return at
	}))

	var collected []string
	seen := map[string]struct{}{}
	for sec := 0; sec < 3; sec++ {
		for i := 0; i < 50; i++ {
			uid := g.NewUID()
			_, dup := seen[uid]
			require.False(t, dup, "duplicate uid %s", uid)
			seen[uid] = struct{}{}
			collected = append(collected, uid)
		}
		mu.Lock()
		at = at.Add(time.Second)
		mu.Unlock()
	}

	// Across seconds the order is non-decreasing; within a second it is not.
	for i := 50; i < len(collected); i += 50 {
		prev := collected[i-50 : i]
		cur := collected[i]
		sort.Strings(prev)
		require.Less(t, prev[len(prev)-1], cur)
	}
}

func TestNewIDUnique(t *testing.T) {
	g := ident.NewGenerator(time.Second)
	require.NotEqual(t, g.NewID(), g.NewID())
}
