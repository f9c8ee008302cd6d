/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

// Package coordkit wires the coordination primitives built on the shared
// key-value store into one per-process Provider: distributed rate limiting
// with tier policies and adaptive health scaling, distributed locking, and
// a two-tier cache with thundering-herd protection.
//
// The subpackages are usable on their own; this package only aggregates
// their configuration into a single loadable tree and owns the shared
// store connection.
package coordkit
