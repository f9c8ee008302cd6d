/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package coordkit

import (
	"context"
	"net/http"

	"github.com/acronis/go-appkit/log"

	"github.com/cloudward/go-coordkit/cache"
	"github.com/cloudward/go-coordkit/distlock"
	"github.com/cloudward/go-coordkit/ratelimit"
	"github.com/cloudward/go-coordkit/redisstore"
)

// Opts represents options for the Provider.
type Opts struct {
	Logger log.FieldLogger

	// LoadProbe feeds the adaptive health scaling of the rate limiter.
	// Nil disables scaling (the backend is always considered healthy).
	LoadProbe ratelimit.LoadProbe

	RateLimitMetrics ratelimit.MetricsCollector
	CacheMetrics     cache.MetricsCollector
}

// Provider owns the per-process coordination components and the shared store
// connection behind them. One Provider per process is intended.
type Provider struct {
	Logger        log.FieldLogger
	Store         *redisstore.RedisStore
	Locker        *distlock.Locker
	Cache         *cache.TieredCache
	RateLimiter   *ratelimit.RequestLimiter
	HealthMonitor *ratelimit.HealthMonitor

	rateLimitDryRun bool
}

// New creates a new Provider from the loaded configuration. It does not
// contact the store: components start degraded if the store is down and
// recover on their own once it is back.
func New(cfg *Config, opts Opts) *Provider {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	store := redisstore.New(cfg.Redis, logger)
	locker := distlock.NewLocker(store, distlock.LockerOpts{Logger: logger})

	cacheOpts := cache.OptsFromConfig(cfg.Cache)
	cacheOpts.Logger = logger
	cacheOpts.MetricsCollector = opts.CacheMetrics
	tieredCache := cache.NewTieredCache(store, locker, cacheOpts)

	monitor := ratelimit.NewHealthMonitor(opts.LoadProbe, ratelimit.HealthMonitorOpts{
		CheckInterval:     cfg.RateLimit.Health.CheckInterval,
		DegradedThreshold: cfg.RateLimit.Health.DegradedThreshold,
		CriticalThreshold: cfg.RateLimit.Health.CriticalThreshold,
		Logger:            logger,
	})
	limiter := ratelimit.NewTokenBucketLimiter(store, ratelimit.TokenBucketLimiterOpts{
		Logger:           logger,
		MetricsCollector: opts.RateLimitMetrics,
		StateTTL:         cfg.RateLimit.StateTTL,
	})
	requestLimiter := ratelimit.NewRequestLimiter(
		ratelimit.NewPolicyResolver(cfg.RateLimit), limiter, ratelimit.RequestLimiterOpts{
			HealthMonitor:    monitor,
			MetricsCollector: opts.RateLimitMetrics,
		})

	return &Provider{
		Logger:          logger,
		Store:           store,
		Locker:          locker,
		Cache:           tieredCache,
		RateLimiter:     requestLimiter,
		HealthMonitor:   monitor,
		rateLimitDryRun: cfg.RateLimit.DryRun,
	}
}

// RateLimitMiddleware returns the HTTP rate-limiting middleware configured
// for this provider, honoring the dry-run setting from the configuration.
func (p *Provider) RateLimitMiddleware(errDomain string) func(next http.Handler) http.Handler {
	return ratelimit.MiddlewareWithOpts(p.RateLimiter, errDomain, ratelimit.MiddlewareOpts{
		DryRun: p.rateLimitDryRun,
	})
}

// RequestScopeMiddleware returns the middleware that installs a per-request
// cache tier. Mount it before any handler that reads through the cache.
func (p *Provider) RequestScopeMiddleware() func(next http.Handler) http.Handler {
	return cache.RequestScopeMiddleware()
}

// Ping checks connectivity to the shared store.
func (p *Provider) Ping(ctx context.Context) error {
	return p.Store.Ping(ctx)
}

// Close releases the shared store connection pool.
func (p *Provider) Close() error {
	return p.Store.Close()
}
