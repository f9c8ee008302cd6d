/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"net/http"
)

// GetKeyFunc resolves the rate-limiting key for a request.
type GetKeyFunc func(r *http.Request) string

// GetTierFunc resolves the client tier for a request.
type GetTierFunc func(r *http.Request) ClientTier

// RequestLimiterOpts represents options for the RequestLimiter.
type RequestLimiterOpts struct {
	// GetKey resolves the client key. Defaults to ClientKey.
	GetKey GetKeyFunc

	// GetTier resolves the client tier. Defaults to ClientTierFromRequest.
	GetTier GetTierFunc

	// HealthMonitor enables adaptive capacity scaling.
	// Nil disables scaling.
	HealthMonitor *HealthMonitor

	MetricsCollector MetricsCollector
}

// RequestLimiter is the inbound rate-limiting surface exposed to the web
// layer. It resolves the caller's tier and policy, applies adaptive health
// scaling, and delegates the token-bucket decision to the shared store.
type RequestLimiter struct {
	resolver *PolicyResolver
	limiter  *TokenBucketLimiter
	monitor  *HealthMonitor
	getKey   GetKeyFunc
	getTier  GetTierFunc
	metrics  MetricsCollector
}

// NewRequestLimiter creates a new RequestLimiter.
func NewRequestLimiter(resolver *PolicyResolver, limiter *TokenBucketLimiter, opts RequestLimiterOpts) *RequestLimiter {
	if opts.GetKey == nil {
		opts.GetKey = ClientKey
	}
	if opts.GetTier == nil {
		opts.GetTier = ClientTierFromRequest
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = DisabledMetrics
	}
	return &RequestLimiter{
		resolver: resolver,
		limiter:  limiter,
		monitor:  opts.HealthMonitor,
		getKey:   opts.GetKey,
		getTier:  opts.GetTier,
		metrics:  opts.MetricsCollector,
	}
}

// AllowRequest makes a rate-limiting decision for the request.
// On deny, the caller is expected to respond with 429 and echo the
// Decision.RetryAfter and remaining-quota values in headers.
func (rl *RequestLimiter) AllowRequest(r *http.Request) Decision {
	tier := rl.getTier(r)
	policy := rl.resolver.Resolve(tier, r.Method, r.URL.Path)
	if rl.monitor != nil {
		policy = ScalePolicy(policy, rl.monitor.CurrentHealth(r.Context()))
	}

	decision := rl.limiter.Allow(r.Context(), rl.getKey(r), policy)
	decision.Tier = tier
	rl.metrics.IncRequests(tier, decision.Allowed)
	if !decision.Allowed {
		rl.metrics.IncRejects(tier)
	}
	return decision
}
