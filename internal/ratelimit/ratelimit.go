// Package ratelimit paces outbound search requests.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy paces outbound search calls. Wait blocks until the next call may
// start or ctx is done.
type Policy interface {
	Wait(ctx context.Context) error
}

const (
	KindFixed = "fixed"
	KindToken = "token"
)

// New returns the policy registered under kind with one call per interval.
func New(kind string, interval time.Duration) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindFixed:
		return NewFixedDelay(interval), nil
	case KindToken:
		return NewTokenBucket(interval), nil
	default:
		return nil, fmt.Errorf("unknown rate policy %q", kind)
	}
}

// FixedDelay sleeps a constant delay before every call except the first.
type FixedDelay struct {
	delay time.Duration

	mu      sync.Mutex
	started bool
}

func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	f.mu.Lock()
	first := !f.started
	f.started = true
	f.mu.Unlock()

	if first || f.delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(f.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TokenBucket allows one call per interval with a burst of one, so a call
// that comes late does not have to sit out a full delay.
type TokenBucket struct {
	limiter *rate.Limiter
}

func NewTokenBucket(interval time.Duration) *TokenBucket {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, 1)}
}

func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}
