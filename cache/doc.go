/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

// Package cache implements a two-tier read-through cache: a request-scoped
// in-process tier in front of the shared key-value store. Misses are computed
// under a distributed lock so that concurrent instances chasing the same cold
// key produce a single effective compute instead of a thundering herd.
//
// The cache degrades rather than fails: when the shared store is unreachable
// or the compute lock cannot be taken, values are computed without protection
// and the result is tagged accordingly. The only errors it propagates to
// callers are those returned by their own compute functions.
package cache
