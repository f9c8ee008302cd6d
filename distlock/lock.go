/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/retry"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	"github.com/cloudward/go-coordkit/redisstore"
)

// Default locking parameters.
const (
	DefaultKeyPrefix = "lock:"

	DefaultLockTTL = 10 * time.Second

	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMultiplier      = 2.0
	DefaultRetryMaxAttempts     = 10

	// releaseTimeout bounds the deferred release in WithLock so a single
	// slow store call cannot hold the caller indefinitely.
	releaseTimeout = 2 * time.Second
)

// ErrLockTimeout is returned when the lock could not be acquired within the
// configured number of attempts. Callers are expected to branch on it and
// choose their degraded path rather than fail the request.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// errLockBusy marks an attempt that found the lock held by someone else.
// It only drives the retry loop and never escapes Acquire.
var errLockBusy = errors.New("lock is busy")

// LockerOpts represents options for the Locker.
type LockerOpts struct {
	Logger log.FieldLogger

	// KeyPrefix namespaces lock keys in the shared store.
	KeyPrefix string

	// RetryPolicy drives waiting between acquisition attempts.
	// Defaults to exponential backoff starting at DefaultRetryInitialInterval
	// with DefaultRetryMaxAttempts attempts.
	RetryPolicy retry.Policy
}

// Locker acquires distributed locks in the shared store.
type Locker struct {
	store       redisstore.Store
	logger      log.FieldLogger
	keyPrefix   string
	retryPolicy retry.Policy
}

// NewLocker creates a new Locker on top of the store.
func NewLocker(store redisstore.Store, opts LockerOpts) *Locker {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = DefaultRetryPolicy()
	}
	return &Locker{
		store:       store,
		logger:      opts.Logger,
		keyPrefix:   opts.KeyPrefix,
		retryPolicy: opts.RetryPolicy,
	}
}

// DefaultRetryPolicy returns the acquisition backoff used when LockerOpts
// does not provide one: exponential, 100ms initial interval, doubling each
// attempt, capped at 10 attempts.
func DefaultRetryPolicy() retry.Policy {
	return retry.PolicyFunc(func() backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = DefaultRetryInitialInterval
		eb.Multiplier = DefaultRetryMultiplier
		eb.RandomizationFactor = 0
		var b backoff.BackOff = backoff.WithMaxRetries(eb, DefaultRetryMaxAttempts-1)
		b.Reset()
		return b
	})
}

// Lock is an acquired distributed lock. It is released explicitly via Release
// and implicitly by the store when its TTL expires.
type Lock struct {
	locker *Locker
	key    string
	name   string
	token  string
}

// Name returns the lock name the lock was acquired under.
func (l *Lock) Name() string { return l.name }

// Acquire takes the named lock, waiting between attempts according to the
// retry policy. The lock expires at the store after ttl even if the holder
// never releases it, so a crashed holder cannot block others forever.
//
// A fresh owner token is generated for every attempt: should a slow earlier
// attempt somehow land after a later one, it cannot produce two holders with
// the same token.
//
// Returns ErrLockTimeout when all attempts found the lock held by someone
// else. Store errors are returned as is and are not retried.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	key := l.keyPrefix + name

	var acquiredToken string
	err := retry.DoWithRetry(ctx, l.retryPolicy,
		func(err error) bool { return errors.Is(err, errLockBusy) },
		nil,
		func(ctx context.Context) error {
			token := xid.New().String()
			ok, setErr := l.store.SetIfAbsent(ctx, key, []byte(token), ttl)
			if setErr != nil {
				return fmt.Errorf("set lock key: %w", setErr)
			}
			if !ok {
				return errLockBusy
			}
			acquiredToken = token
			return nil
		})
	if err != nil {
		if errors.Is(err, errLockBusy) {
			l.logger.Warn("lock acquisition attempts exhausted",
				log.String("lock_name", name))
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	return &Lock{locker: l, key: key, name: name, token: acquiredToken}, nil
}

// Release releases the lock. If it already expired and was reacquired by
// another holder, the release is a no-op: the other holder's lock stays
// intact.
func (lk *Lock) Release(ctx context.Context) error {
	deleted, err := lk.locker.store.DeleteIfOwner(ctx, lk.key, lk.token)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", lk.name, err)
	}
	if !deleted {
		lk.locker.logger.Debug("lock was not released, ownership already lost",
			log.String("lock_name", lk.name))
	}
	return nil
}

// WithLock runs fn while holding the named lock, releasing it on every exit
// path including a panic inside fn. The release uses its own deadline
// detached from ctx cancellation, so the lock is returned promptly instead
// of lingering until TTL expiry.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if releaseErr := lock.Release(releaseCtx); releaseErr != nil {
			l.logger.Error("failed to release lock",
				log.String("lock_name", name), log.Error(releaseErr))
		}
	}()
	return fn(ctx)
}
