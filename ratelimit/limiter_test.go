/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cloudward/go-coordkit/redisstore"
)

func newTestLimiter(t *testing.T) (*TokenBucketLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), nil)
	t.Cleanup(func() { _ = store.Close() })
	return NewTokenBucketLimiter(store, TokenBucketLimiterOpts{}), srv
}

// setLimiterTime pins the limiter clock to a fixed, controllable moment.
func setLimiterTime(l *TokenBucketLimiter, at *time.Time) {
	l.nowFunc = func() time.Time { return *at }
}

func TestTokenBucketDenyThenAllow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	now := time.Unix(1700000000, 0)
	setLimiterTime(limiter, &now)

	policy := Policy{Capacity: 2, Window: time.Minute}
	ctx := context.Background()

	d := limiter.Allow(ctx, "user:42", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)

	d = limiter.Allow(ctx, "user:42", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)

	d = limiter.Allow(ctx, "user:42", policy)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, d.RetryAfter, 31*time.Second)

	// One token refills every window/capacity seconds.
	now = now.Add(30 * time.Second)
	d = limiter.Allow(ctx, "user:42", policy)
	require.True(t, d.Allowed)
}

func TestTokenBucketRefillProportional(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	now := time.Unix(1700000000, 0)
	setLimiterTime(limiter, &now)

	// capacity=10, window=10s => 1 token/s.
	policy := Policy{Capacity: 10, Window: 10 * time.Second}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d := limiter.Allow(ctx, "user:7", policy)
		require.True(t, d.Allowed)
		require.Equal(t, 9-i, d.Remaining)
	}

	now = now.Add(5 * time.Second)
	d := limiter.Allow(ctx, "user:7", policy)
	require.True(t, d.Allowed)
	// 5 tokens refilled over 5s, the check itself consumed one.
	require.Equal(t, 4, d.Remaining)
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	now := time.Unix(1700000000, 0)
	setLimiterTime(limiter, &now)

	policy := Policy{Capacity: 5, Window: time.Second}
	ctx := context.Background()

	d := limiter.Allow(ctx, "user:1", policy)
	require.True(t, d.Allowed)

	// A long idle period must not accumulate more than capacity.
	now = now.Add(time.Hour)
	d = limiter.Allow(ctx, "user:1", policy)
	require.True(t, d.Allowed)
	require.Equal(t, policy.Capacity-1, d.Remaining)

	for i := 0; i < 100; i++ {
		d = limiter.Allow(ctx, "user:1", policy)
		require.GreaterOrEqual(t, d.Remaining, 0)
		require.LessOrEqual(t, d.Remaining, policy.Capacity)
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	srv := miniredis.RunT(t)
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), nil)
	limiter := NewTokenBucketLimiter(store, TokenBucketLimiterOpts{})
	srv.Close()

	policy := Policy{Capacity: 3, Window: time.Minute}
	for i := 0; i < 5; i++ {
		d := limiter.Allow(context.Background(), "user:42", policy)
		require.True(t, d.Allowed)
		require.True(t, d.FailedOpen)
		require.Equal(t, policy.Capacity, d.Remaining)
	}
}

func TestTokenBucketReinitializesMalformedState(t *testing.T) {
	limiter, srv := newTestLimiter(t)
	require.NoError(t, srv.Set(DefaultBucketKeyPrefix+"user:42", "definitely not json"))

	policy := Policy{Capacity: 3, Window: time.Minute}
	d := limiter.Allow(context.Background(), "user:42", policy)
	require.True(t, d.Allowed)
	require.False(t, d.FailedOpen)
	require.Equal(t, policy.Capacity-1, d.Remaining)

	// The rebuilt state must be decodable from now on.
	d = limiter.Allow(context.Background(), "user:42", policy)
	require.True(t, d.Allowed)
	require.Equal(t, policy.Capacity-2, d.Remaining)
}

func TestTokenBucketStateExpiry(t *testing.T) {
	limiter, srv := newTestLimiter(t)

	policy := Policy{Capacity: 2, Window: time.Minute}
	d := limiter.Allow(context.Background(), "user:42", policy)
	require.True(t, d.Allowed)

	ttl := srv.TTL(DefaultBucketKeyPrefix + "user:42")
	require.Equal(t, DefaultBucketStateTTL, ttl)
}
