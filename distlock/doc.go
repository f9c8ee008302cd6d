/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

// Package distlock provides a distributed mutual-exclusion lock on top of the
// shared key-value store. A lock is a store key holding a random owner token;
// acquisition is a single atomic set-if-absent with TTL, and release deletes
// the key only if it still holds the owner token, so an expired lock that was
// reacquired by another holder is never released by mistake.
package distlock
