/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"
)

// ClientTier is a classification of the caller used to select a default
// rate-limit policy. It is resolved by the upstream auth layer and consumed
// here as an opaque input.
type ClientTier string

// Supported client tiers.
const (
	TierPublic        ClientTier = "public"
	TierAuthenticated ClientTier = "authenticated"
	TierAdmin         ClientTier = "admin"
	TierService       ClientTier = "service"
)

// ParseClientTier parses its argument as a ClientTier.
func ParseClientTier(s string) (ClientTier, error) {
	switch ClientTier(s) {
	case TierPublic, TierAuthenticated, TierAdmin, TierService:
		return ClientTier(s), nil
	}
	return "", fmt.Errorf("unknown client tier %q", s)
}

// Policy describes the frequency of requests allowed for a single client key:
// Capacity tokens refilling continuously over Window.
type Policy struct {
	Capacity int
	Window   time.Duration
}

// RefillRate returns the bucket refill rate in tokens per second.
func (p Policy) RefillRate() float64 {
	if p.Window <= 0 {
		return 0
	}
	return float64(p.Capacity) / p.Window.Seconds()
}

// EndpointKey identifies an endpoint for per-endpoint policy overrides.
type EndpointKey struct {
	Method string
	Path   string
}

// DefaultPolicy is the hard-coded fallback policy used when neither an
// endpoint override nor a tier default matches.
var DefaultPolicy = Policy{Capacity: 1000, Window: time.Minute}

// defaultTierPolicies mirrors the production tier table.
var defaultTierPolicies = map[ClientTier]Policy{
	TierPublic:        {Capacity: 100, Window: time.Minute},
	TierAuthenticated: {Capacity: 1000, Window: time.Minute},
	TierAdmin:         {Capacity: 5000, Window: time.Minute},
	TierService:       {Capacity: 10000, Window: time.Minute},
}

// defaultEndpointOverrides protects the endpoints that are expensive
// regardless of who calls them. Configured overrides add to and shadow
// these.
var defaultEndpointOverrides = map[EndpointKey]Policy{
	{Method: "POST", Path: "/api/v2/projects"}:          {Capacity: 10, Window: time.Minute},
	{Method: "GET", Path: "/api/v2/costs"}:              {Capacity: 100, Window: time.Minute},
	{Method: "GET", Path: "/api/v2/compliance/reports"}: {Capacity: 50, Window: time.Minute},
}

// PolicyResolver maps (client tier, HTTP method, path) to a Policy.
// Lookup order: exact (method, path) override, tier default, DefaultPolicy.
// Resolution is pure: no I/O and no error conditions.
type PolicyResolver struct {
	tierPolicies      map[ClientTier]Policy
	endpointOverrides map[EndpointKey]Policy
	defaultPolicy     Policy
}

// NewPolicyResolver creates a PolicyResolver from the configured tier table
// and endpoint overrides. Tiers missing from cfg fall back to the built-in
// tier defaults. Nil cfg yields a resolver with built-in defaults only.
func NewPolicyResolver(cfg *Config) *PolicyResolver {
	tierPolicies := make(map[ClientTier]Policy, len(defaultTierPolicies))
	for tier, policy := range defaultTierPolicies {
		tierPolicies[tier] = policy
	}
	overrides := make(map[EndpointKey]Policy, len(defaultEndpointOverrides))
	for endpoint, policy := range defaultEndpointOverrides {
		overrides[endpoint] = policy
	}
	defaultPolicy := DefaultPolicy

	if cfg != nil {
		for tierName, pc := range cfg.Tiers {
			tierPolicies[ClientTier(tierName)] = pc.policy()
		}
		for _, oc := range cfg.EndpointOverrides {
			overrides[EndpointKey{Method: oc.Method, Path: oc.Path}] = Policy{
				Capacity: oc.Capacity,
				Window:   time.Duration(oc.WindowSec) * time.Second,
			}
		}
		if cfg.DefaultPolicy.Capacity > 0 {
			defaultPolicy = cfg.DefaultPolicy.policy()
		}
	}

	return &PolicyResolver{
		tierPolicies:      tierPolicies,
		endpointOverrides: overrides,
		defaultPolicy:     defaultPolicy,
	}
}

// Resolve returns the policy for the given tier, HTTP method, and path.
func (r *PolicyResolver) Resolve(tier ClientTier, method, path string) Policy {
	if policy, ok := r.endpointOverrides[EndpointKey{Method: method, Path: path}]; ok {
		return policy
	}
	if policy, ok := r.tierPolicies[tier]; ok {
		return policy
	}
	return r.defaultPolicy
}

// ScalePolicy scales policy capacity down according to backend health:
// critical keeps 20% of the capacity, degraded keeps 50%, healthy keeps all.
// Scaling rounds down, never produces capacity below 1, and leaves the
// window unchanged.
func ScalePolicy(policy Policy, health HealthState) Policy {
	var factor float64
	switch health {
	case HealthCritical:
		factor = 0.2
	case HealthDegraded:
		factor = 0.5
	default:
		return policy
	}
	capacity := int(float64(policy.Capacity) * factor)
	if capacity < 1 {
		capacity = 1
	}
	return Policy{Capacity: capacity, Window: policy.Window}
}
