/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	_ "embed"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/cloudward/go-coordkit/redisstore"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// Default token-bucket limiter parameters.
const (
	// DefaultBucketStateTTL bounds store memory for long-idle clients.
	DefaultBucketStateTTL = 24 * time.Hour

	DefaultBucketKeyPrefix = "rate_limit:"
)

// Decision is the result of a single rate-limiting check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// RetryAfter estimates when the next token becomes available.
	// It is zero for allowed decisions.
	RetryAfter time.Duration

	// Window is the policy window the decision was made against.
	Window time.Duration

	// FailedOpen marks a decision produced by the degraded path:
	// the shared store could not be consulted and the request was allowed.
	FailedOpen bool

	Key  string
	Tier ClientTier
}

// TokenBucketLimiterOpts represents options for the TokenBucketLimiter.
type TokenBucketLimiterOpts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector

	// StateTTL is the expiry applied to persisted bucket state.
	StateTTL time.Duration

	// KeyPrefix namespaces bucket state keys in the shared store.
	KeyPrefix string
}

// TokenBucketLimiter computes allow/deny decisions using bucket state shared
// between all instances. The read-refill-consume-persist sequence executes as
// one atomic script at the store, so concurrent callers cannot lose each
// other's updates.
type TokenBucketLimiter struct {
	store     redisstore.Store
	logger    log.FieldLogger
	metrics   MetricsCollector
	stateTTL  time.Duration
	keyPrefix string

	nowFunc func() time.Time
}

// NewTokenBucketLimiter creates a new TokenBucketLimiter on top of the store.
func NewTokenBucketLimiter(store redisstore.Store, opts TokenBucketLimiterOpts) *TokenBucketLimiter {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = DisabledMetrics
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultBucketStateTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultBucketKeyPrefix
	}
	return &TokenBucketLimiter{
		store:     store,
		logger:    opts.Logger,
		metrics:   opts.MetricsCollector,
		stateTTL:  opts.StateTTL,
		keyPrefix: opts.KeyPrefix,
		nowFunc:   time.Now,
	}
}

// Allow checks whether one more request from clientKey fits into policy and
// consumes a token if it does. It never returns an error: when the store is
// unreachable or responds with something undecodable, the limiter fails open
// and tags the decision accordingly. The failed attempt is logged but not
// retried inline, so an outage does not add latency to every request.
func (l *TokenBucketLimiter) Allow(ctx context.Context, clientKey string, policy Policy) Decision {
	now := float64(l.nowFunc().UnixMicro()) / 1e6

	res, err := l.store.Eval(ctx, tokenBucketScript,
		[]string{l.keyPrefix + clientKey},
		policy.Capacity, policy.RefillRate(), now, int64(l.stateTTL.Seconds()))
	if err != nil {
		return l.failOpen(clientKey, policy, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 4 {
		return l.failOpen(clientKey, policy, fmt.Errorf("unexpected script result %T", res))
	}
	allowed := asInt64(values[0]) == 1
	remaining := asInt64(values[1])
	retryAfterMs := asInt64(values[2])

	if asInt64(values[3]) == 1 {
		// Should be rare; worth surfacing to operators as a correctness signal.
		l.logger.Warn("malformed bucket state was re-initialized",
			log.String(RateLimitLogFieldKey, clientKey))
		l.metrics.IncStateReinits()
	}

	decision := Decision{
		Allowed:    allowed,
		Limit:      policy.Capacity,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryAfterMs) * time.Millisecond,
		Window:     policy.Window,
		Key:        clientKey,
	}
	return decision
}

func (l *TokenBucketLimiter) failOpen(clientKey string, policy Policy, err error) Decision {
	l.logger.Error("rate limit check failed, failing open",
		log.String(RateLimitLogFieldKey, clientKey),
		log.Bool("store_unavailable", redisstore.IsUnavailable(err)),
		log.Error(err))
	l.metrics.IncFailOpens()
	return Decision{
		Allowed:    true,
		Limit:      policy.Capacity,
		Remaining:  policy.Capacity,
		Window:     policy.Window,
		FailedOpen: true,
		Key:        clientKey,
	}
}

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}
