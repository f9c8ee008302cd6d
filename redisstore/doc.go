/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

// Package redisstore provides a thin adapter over the shared Redis store that
// backs cross-instance coordination: rate-limit bucket state, distributed
// locks, and the shared cache tier. All mutating operations it exposes
// complete in a single round trip at the store, so callers never need to hold
// a multi-step read-then-write sequence open against it.
package redisstore
