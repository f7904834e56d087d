package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterSlidingWindowOverQuoteKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := Limiter{Client: client}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "203.0.113.7", window, max)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should pass", i)
		require.Equal(t, max-(i+1), remaining)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "203.0.113.7", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "203.0.113.7", window, max)
	require.NoError(t, err)
	require.True(t, allowed, "window slid, budget should be back")
}

func TestLimiterNamespacesKeysUnderShippingPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := Limiter{Client: client}

	_, _, _, err := limiter.Allow(context.Background(), "203.0.113.7", time.Second, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists("rl:shipping:203.0.113.7"))
}

func TestLimiterDisabledWithoutClientOrBudget(t *testing.T) {
	allowed, _, _, err := Limiter{}.Allow(context.Background(), "k", time.Second, 5)
	require.NoError(t, err)
	require.True(t, allowed)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	allowed, _, _, err = Limiter{Client: client}.Allow(context.Background(), "k", time.Second, 0)
	require.NoError(t, err)
	require.True(t, allowed)
}
