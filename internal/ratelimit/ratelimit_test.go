package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsroom/news-collector/internal/ratelimit"
)

func TestFixedDelayFirstCallImmediate(t *testing.T) {
	p := ratelimit.NewFixedDelay(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.Less(t, time.Since(start), 100*time.Millisecond)

	start = time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestFixedDelayHonoursCancellation(t *testing.T) {
	p := ratelimit.NewFixedDelay(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFixedDelayZero(t *testing.T) {
	p := ratelimit.NewFixedDelay(0)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestTokenBucketSpacesCalls(t *testing.T) {
	p := ratelimit.NewTokenBucket(150 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, p.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestNew(t *testing.T) {
	p, err := ratelimit.New("fixed", time.Second)
	require.NoError(t, err)
	require.IsType(t, &ratelimit.FixedDelay{}, p)

	p, err = ratelimit.New("TOKEN", time.Second)
	require.NoError(t, err)
	require.IsType(t, &ratelimit.TokenBucket{}, p)

	p, err = ratelimit.New("", time.Second)
	require.NoError(t, err)
	require.IsType(t, &ratelimit.FixedDelay{}, p)

	_, err = ratelimit.New("leaky", time.Second)
	require.Error(t, err)
}
