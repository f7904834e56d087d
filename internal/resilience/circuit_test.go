package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

func TestBreakerShieldsFlappingUpstream(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond).WithTarget("boxberry")
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "two failures out of two must open the breaker")

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "cool-off elapsed, probe admitted")
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "successful probe closes the breaker")
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, 30*time.Millisecond).WithTarget("russianpost")
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.False(t, breaker.Allow(ctx))

	time.Sleep(40 * time.Millisecond)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.False(t, breaker.Allow(ctx), "failed probe must reopen immediately")
}

func TestBackoffGrowsExponentiallyWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	// 20% jitter keeps the attempt-2 delay inside [160ms, 240ms]
	jittered := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, jittered, base*2-base*2/5)
	require.LessOrEqual(t, jittered, base*2+base*2/5)
}
