package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/cache"
)

func TestMemoryTTLExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := cache.NewMemory[string](15*time.Minute, 0, cache.WithClock[string](clock))

	c.Set("k", "v")

	now = now.Add(15*time.Minute - time.Millisecond)
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	now = now.Add(2 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must expire after the TTL elapses")
}

func TestMemoryLRUEviction(t *testing.T) {
	t.Parallel()

	c := cache.NewMemory[int](time.Hour, 2)
	c.Set("a", 1)
	c.Set("b", 2)

	// touch "a" so "b" becomes the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)
	require.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	require.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestMemoryReplaceOnWrite(t *testing.T) {
	t.Parallel()

	c := cache.NewMemory[[]string](time.Hour, 10)
	c.Set("k", []string{"old"})
	c.Set("k", []string{"new"})

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, []string{"new"}, got)
	require.Equal(t, 1, c.Len())
}
