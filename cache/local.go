/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"context"
	"net/http"
	"sync"

	"github.com/vasayxtx/go-glob"
)

// RequestScope is the in-process cache tier. One scope is created per request
// and discarded with it, so entries never outlive the request that produced
// them and no cross-request staleness is possible at this tier.
type RequestScope struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewRequestScope creates an empty request-scoped cache tier.
func NewRequestScope() *RequestScope {
	return &RequestScope{entries: make(map[string][]byte)}
}

// Get returns the value stored under key in the scope.
func (s *RequestScope) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	return value, ok
}

// Set stores value under key in the scope.
func (s *RequestScope) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Delete removes key from the scope.
func (s *RequestScope) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeleteByPattern removes all keys matching the glob pattern and returns how
// many were removed.
func (s *RequestScope) DeleteByPattern(pattern string) int {
	matches := glob.Compile(pattern)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if matches(key) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from the scope.
func (s *RequestScope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]byte)
}

// Len returns the number of entries in the scope.
func (s *RequestScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type ctxKeyRequestScope struct{}

// NewContextWithRequestScope creates a new context with the request scope.
func NewContextWithRequestScope(ctx context.Context, scope *RequestScope) context.Context {
	return context.WithValue(ctx, ctxKeyRequestScope{}, scope)
}

// RequestScopeFromContext extracts the request scope from the context.
// Nil is returned when no scope was installed; the cache then simply skips
// the request tier.
func RequestScopeFromContext(ctx context.Context) *RequestScope {
	scope, _ := ctx.Value(ctxKeyRequestScope{}).(*RequestScope)
	return scope
}

// RequestScopeMiddleware returns a middleware that installs a fresh
// RequestScope into each request's context.
func RequestScopeMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := NewContextWithRequestScope(r.Context(), NewRequestScope())
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
