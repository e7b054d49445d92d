// Package ident generates the identifiers attached to collected news items.
//
// A uid is "<UTC yyyymmdd_hhmmss>_<8 hex chars>". Its timestamp prefix makes
// lexicographic order follow collection order at second granularity; items
// collected within the same second are unordered relative to each other.
package ident

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UIDTimeLayout is the timestamp prefix of every uid.
const UIDTimeLayout = "20060102_150405"

const suffixLen = 8

type entry struct {
	uid string
	ts  time.Time
}

// Generator issues uids and ids. It remembers uids issued within a short
// window so that a suffix collision inside one process is redrawn instead of
// overwriting another record.
type Generator struct {
	mu     sync.Mutex
	issued map[string]time.Time
	order  []entry
	window time.Duration
	now    func() time.Time
	suffix func() string
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSuffixSource replaces the random suffix source.
func WithSuffixSource(suffix func() string) Option {
	return func(g *Generator) { g.suffix = suffix }
}

// NewGenerator creates a generator remembering issued uids for window.
// The window must cover at least one second, the uid's time granularity.
func NewGenerator(window time.Duration, opts ...Option) *Generator {
	if window < time.Second {
		window = 2 * time.Second
	}
	g := &Generator{
		issued: make(map[string]time.Time),
		window: window,
		now:    time.Now,
		suffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewUID returns a uid not issued by this generator within its window.
func (g *Generator) NewUID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	prefix := now.Format(UIDTimeLayout) + "_"
	for {
		uid := prefix + g.suffix()
		if _, ok := g.issued[uid]; ok {
			continue
		}
		g.issued[uid] = now
		g.order = append(g.order, entry{uid: uid, ts: now})
		g.compact(now)
		return uid
	}
}

// NewID returns an opaque unique identifier with no ordering meaning.
func (g *Generator) NewID() string {
	return uuid.NewString()
}

// remembered reports how many uids are currently held in the window.
func (g *Generator) remembered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.issued)
}

func (g *Generator) compact(now time.Time) {
	cutoff := now.Add(-g.window)
	for len(g.order) > 0 && g.order[0].ts.Before(cutoff) {
		oldest := g.order[0]
		g.order = g.order[1:]
		if ts, ok := g.issued[oldest.uid]; ok && ts.Equal(oldest.ts) {
			delete(g.issued, oldest.uid)
		}
	}
}

func randomSuffix() string {
	return uuid.NewString()[:suffixLen]
}

// uidTime parses the timestamp prefix of a uid.
func uidTime(uid string) (time.Time, bool) {
	if len(uid) < len(UIDTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(UIDTimeLayout, uid[:len(UIDTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
