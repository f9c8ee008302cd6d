/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package distlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acronis/go-appkit/retry"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/cloudward/go-coordkit/redisstore"
)

func newTestLocker(t *testing.T, opts LockerOpts) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), nil)
	t.Cleanup(func() { _ = store.Close() })
	return NewLocker(store, opts), srv
}

// fastRetryPolicy keeps lock contention tests quick.
func fastRetryPolicy(maxAttempts int) retry.Policy {
	return retry.NewConstantBackoffPolicy(time.Millisecond, maxAttempts)
}

func TestLockerAcquireAndRelease(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{})
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "resource-42", time.Second)
	require.NoError(t, err)
	require.Equal(t, "resource-42", lock.Name())
	require.True(t, srv.Exists("lock:resource-42"))

	require.NoError(t, lock.Release(ctx))
	require.False(t, srv.Exists("lock:resource-42"))
}

func TestLockerAcquireTimeout(t *testing.T) {
	locker, _ := newTestLocker(t, LockerOpts{RetryPolicy: fastRetryPolicy(3)})
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "busy", time.Minute)
	require.NoError(t, err)
	defer func() { require.NoError(t, lock.Release(ctx)) }()

	_, err = locker.Acquire(ctx, "busy", time.Minute)
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestLockerAcquireStoreErrorIsNotRetried(t *testing.T) {
	srv := miniredis.RunT(t)
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), nil)
	locker := NewLocker(store, LockerOpts{RetryPolicy: fastRetryPolicy(10)})
	srv.Close()

	_, err := locker.Acquire(context.Background(), "unreachable", time.Second)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrLockTimeout)
	require.True(t, redisstore.IsUnavailable(err))
}

func TestLockerMutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, LockerOpts{RetryPolicy: fastRetryPolicy(200)})

	const goroutines = 8
	holders := atomic.NewInt32(0)
	violations := atomic.NewInt32(0)
	executions := atomic.NewInt32(0)
	errs := make(chan error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- locker.WithLock(context.Background(), "shared", time.Minute, func(ctx context.Context) error {
				if holders.Inc() != 1 {
					violations.Inc()
				}
				time.Sleep(2 * time.Millisecond)
				holders.Dec()
				executions.Inc()
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(0), violations.Load(), "two holders were inside the critical section")
	require.Equal(t, int32(goroutines), executions.Load())
}

func TestLockReleaseAfterExpiryIsNoOp(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{RetryPolicy: fastRetryPolicy(1)})
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "flappy", time.Second)
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)
	require.False(t, srv.Exists("lock:flappy"))

	second, err := locker.Acquire(ctx, "flappy", time.Minute)
	require.NoError(t, err)

	// The first holder lost ownership, so its release must leave the
	// second holder's lock intact.
	require.NoError(t, first.Release(ctx))
	require.True(t, srv.Exists("lock:flappy"))

	require.NoError(t, second.Release(ctx))
	require.False(t, srv.Exists("lock:flappy"))
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{})

	wantErr := errors.New("compute failed")
	err := locker.WithLock(context.Background(), "job", time.Minute, func(ctx context.Context) error {
		require.True(t, srv.Exists("lock:job"))
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.False(t, srv.Exists("lock:job"))
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{})

	require.Panics(t, func() {
		_ = locker.WithLock(context.Background(), "job", time.Minute, func(ctx context.Context) error {
			panic("boom")
		})
	})
	require.False(t, srv.Exists("lock:job"))
}

func TestWithLockReleasesOnContextCancellation(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	err := locker.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	// Release runs detached from the canceled context.
	require.False(t, srv.Exists("lock:job"))
}

func TestLockerCustomKeyPrefix(t *testing.T) {
	locker, srv := newTestLocker(t, LockerOpts{KeyPrefix: "cw:locks:"})
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "thing", time.Second)
	require.NoError(t, err)
	require.True(t, srv.Exists("cw:locks:thing"))
	require.NoError(t, lock.Release(ctx))
}
