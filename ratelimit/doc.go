/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

// Package ratelimit implements distributed token-bucket rate limiting backed
// by the shared store. Each decision is a single atomic Lua round trip, so
// concurrent callers on any number of instances never lose updates to each
// other. Policies are resolved per client tier with per-endpoint overrides
// and scaled down adaptively when the backend reports degraded health.
//
// The limiter fails open: if the shared store is unreachable or returns a
// malformed result, requests are allowed and the incident is logged. No error
// of this package ever aborts the wrapped request.
package ratelimit
