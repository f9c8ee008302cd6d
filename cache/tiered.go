/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/cloudward/go-coordkit/distlock"
	"github.com/cloudward/go-coordkit/redisstore"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Source tells where a cache read was ultimately served from.
type Source string

// Result sources, ordered from cheapest to most expensive.
const (
	SourceRequestTier Source = "request"
	SourceSharedTier  Source = "shared"
	SourceComputed    Source = "computed"

	// SourceComputedUnprotected marks a compute that ran without the
	// distributed lock: either the lock could not be taken in time or the
	// shared store was unreachable. The value is correct but concurrent
	// instances may have computed it redundantly.
	SourceComputedUnprotected Source = "computed_unprotected"
)

// Result is a successful cache read together with its provenance.
type Result struct {
	Value  []byte
	Source Source
}

// TieredCacheOpts represents options for the TieredCache.
type TieredCacheOpts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector

	// KeyNamespace prefixes every key in the shared store.
	KeyNamespace string

	// DefaultTTL applies when no TTL argument is given and no TTLs prefix matches.
	DefaultTTL time.Duration

	// TTLs maps key prefixes to expiries. Longest matching prefix wins.
	TTLs map[string]time.Duration

	// LockTTL is the expiry of the per-key compute lock.
	LockTTL time.Duration

	// CompressMinSize is the smallest payload stored compressed.
	// Zero disables compression.
	CompressMinSize int
}

// OptsFromConfig builds TieredCacheOpts from the loaded configuration.
func OptsFromConfig(cfg *Config) TieredCacheOpts {
	return TieredCacheOpts{
		KeyNamespace:    cfg.KeyNamespace,
		DefaultTTL:      cfg.DefaultTTL,
		TTLs:            cfg.ttlTable(),
		LockTTL:         cfg.LockTTL,
		CompressMinSize: int(cfg.CompressMinSize),
	}
}

// TieredCache reads through the request tier and the shared store tier,
// computing missing values under a per-key distributed lock.
type TieredCache struct {
	store   redisstore.Store
	locker  *distlock.Locker
	logger  log.FieldLogger
	metrics MetricsCollector

	keyNamespace    string
	defaultTTL      time.Duration
	ttls            map[string]time.Duration
	lockTTL         time.Duration
	compressMinSize int
}

// NewTieredCache creates a new TieredCache on top of the store and locker.
func NewTieredCache(store redisstore.Store, locker *distlock.Locker, opts TieredCacheOpts) *TieredCache {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = DisabledMetrics
	}
	if opts.KeyNamespace == "" {
		opts.KeyNamespace = DefaultKeyNamespace
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &TieredCache{
		store:           store,
		locker:          locker,
		logger:          opts.Logger,
		metrics:         opts.MetricsCollector,
		keyNamespace:    opts.KeyNamespace,
		defaultTTL:      opts.DefaultTTL,
		ttls:            opts.TTLs,
		lockTTL:         opts.LockTTL,
		compressMinSize: opts.CompressMinSize,
	}
}

// GetOrCompute returns the value for key, serving it from the cheapest tier
// that has it and computing it otherwise. Zero ttl selects the expiry from
// the configured TTL table by longest key prefix, falling back to the
// default TTL.
//
// The compute path takes a per-key distributed lock so that concurrent
// instances chasing the same cold key produce one effective compute. When
// the lock cannot be taken or the shared store is down, the value is
// computed without protection and Result.Source reports that.
//
// The returned error is always the compute function's own: infrastructure
// failures degrade the path taken, they do not fail the read.
func (c *TieredCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (Result, error) {
	scope := RequestScopeFromContext(ctx)
	if scope != nil {
		if value, ok := scope.Get(key); ok {
			c.metrics.IncHits(string(SourceRequestTier))
			return Result{Value: value, Source: SourceRequestTier}, nil
		}
	}

	if value, ok := c.readShared(ctx, key); ok {
		if scope != nil {
			scope.Set(key, value)
		}
		c.metrics.IncHits(string(SourceSharedTier))
		return Result{Value: value, Source: SourceSharedTier}, nil
	}
	c.metrics.IncMisses()
	ttl = c.resolveTTL(key, ttl)

	lock, err := c.locker.Acquire(ctx, c.keyNamespace+key, c.lockTTL)
	if err != nil {
		if errors.Is(err, distlock.ErrLockTimeout) {
			// The long-time holder likely finished the compute by now.
			if value, ok := c.readShared(ctx, key); ok {
				if scope != nil {
					scope.Set(key, value)
				}
				c.metrics.IncHits(string(SourceSharedTier))
				return Result{Value: value, Source: SourceSharedTier}, nil
			}
		} else {
			c.logger.Warn("cache compute lock unavailable",
				log.String("cache_key", key),
				log.Bool("store_unavailable", redisstore.IsUnavailable(err)),
				log.Error(err))
		}
		return c.computeUnprotected(ctx, key, compute, scope)
	}
	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			c.logger.Error("failed to release cache compute lock",
				log.String("cache_key", key), log.Error(releaseErr))
		}
	}()

	// Another instance may have finished the compute while we waited.
	if value, ok := c.readShared(ctx, key); ok {
		if scope != nil {
			scope.Set(key, value)
		}
		c.metrics.IncHits(string(SourceSharedTier))
		return Result{Value: value, Source: SourceSharedTier}, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return Result{}, err
	}
	c.metrics.IncComputes(true)
	c.writeShared(ctx, key, value, ttl)
	if scope != nil {
		scope.Set(key, value)
	}
	return Result{Value: value, Source: SourceComputed}, nil
}

func (c *TieredCache) computeUnprotected(ctx context.Context, key string, compute ComputeFunc, scope *RequestScope) (Result, error) {
	value, err := compute(ctx)
	if err != nil {
		return Result{}, err
	}
	c.metrics.IncComputes(false)
	// Only the request tier is populated: without the lock a concurrent
	// protected compute may be writing the shared tier right now, and a
	// second unconditional write could clobber a fresher value.
	if scope != nil {
		scope.Set(key, value)
	}
	return Result{Value: value, Source: SourceComputedUnprotected}, nil
}

// Put stores value under key in both tiers. Zero ttl selects the expiry the
// same way GetOrCompute does.
func (c *TieredCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if scope := RequestScopeFromContext(ctx); scope != nil {
		scope.Set(key, value)
	}
	payload, err := encodePayload(value, c.compressMinSize)
	if err != nil {
		return err
	}
	if err = c.store.SetWithTTL(ctx, c.keyNamespace+key, payload, c.resolveTTL(key, ttl)); err != nil {
		return fmt.Errorf("store cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	if scope := RequestScopeFromContext(ctx); scope != nil {
		scope.Delete(key)
	}
	if _, err := c.store.Delete(ctx, c.keyNamespace+key); err != nil {
		return fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	return nil
}

func (c *TieredCache) readShared(ctx context.Context, key string) ([]byte, bool) {
	payload, found, err := c.store.Get(ctx, c.keyNamespace+key)
	if err != nil {
		c.logger.Warn("failed to read shared cache tier",
			log.String("cache_key", key),
			log.Bool("store_unavailable", redisstore.IsUnavailable(err)),
			log.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	value, err := decodePayload(payload)
	if err != nil {
		// The entry is unusable, drop it so the next read recomputes.
		c.logger.Error("failed to decode shared cache entry, deleting it",
			log.String("cache_key", key), log.Error(err))
		if _, delErr := c.store.Delete(ctx, c.keyNamespace+key); delErr != nil {
			c.logger.Error("failed to delete undecodable cache entry",
				log.String("cache_key", key), log.Error(delErr))
		}
		return nil, false
	}
	return value, true
}

func (c *TieredCache) writeShared(ctx context.Context, key string, value []byte, ttl time.Duration) {
	payload, err := encodePayload(value, c.compressMinSize)
	if err != nil {
		c.logger.Error("failed to encode cache entry",
			log.String("cache_key", key), log.Error(err))
		return
	}
	if err = c.store.SetWithTTL(ctx, c.keyNamespace+key, payload, ttl); err != nil {
		c.logger.Warn("failed to write shared cache tier",
			log.String("cache_key", key),
			log.Bool("store_unavailable", redisstore.IsUnavailable(err)),
			log.Error(err))
	}
}

// resolveTTL picks the expiry for key: the explicit argument if positive,
// otherwise the longest configured key prefix, otherwise the default.
func (c *TieredCache) resolveTTL(key string, explicit time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	bestLen := -1
	ttl := c.defaultTTL
	for prefix, prefixTTL := range c.ttls {
		if strings.HasPrefix(key, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			ttl = prefixTTL
		}
	}
	return ttl
}
