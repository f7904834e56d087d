package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// defaultPrefix namespaces limiter keys next to the other shipping keys
// (quote cache, pvz lists, webhook replay) in the shared Redis.
const defaultPrefix = "rl:shipping:"

// Limiter is a sliding-window limiter over Redis sorted sets. It throttles
// the quote and pvz routes, where one storefront request fans out into
// several courier API calls.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

func (l Limiter) bucketKey(key string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + key
}

// Allow records one event for key and reports whether the caller is still
// inside the window. A nil client or non-positive limit disables throttling.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	now := time.Now()
	reset = now.Add(window)
	bucket := l.bucketKey(key)
	cutoff := fmt.Sprintf("%f", float64(now.Add(-window).UnixNano()))

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", cutoff)
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	countCmd := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	inWindow := int(countCmd.Val())
	remaining = max - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return inWindow <= max, remaining, reset, nil
}
