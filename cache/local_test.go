/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestScope(t *testing.T) {
	scope := NewRequestScope()

	_, ok := scope.Get("k")
	require.False(t, ok)

	scope.Set("k", []byte("v"))
	value, ok := scope.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)
	require.Equal(t, 1, scope.Len())

	scope.Delete("k")
	_, ok = scope.Get("k")
	require.False(t, ok)
}

func TestRequestScopeDeleteByPattern(t *testing.T) {
	scope := NewRequestScope()
	scope.Set("costs:daily:1", []byte("v"))
	scope.Set("costs:summary:2", []byte("v"))
	scope.Set("projects:list:all", []byte("v"))

	require.Equal(t, 2, scope.DeleteByPattern("costs:*"))
	require.Equal(t, 1, scope.Len())
	_, ok := scope.Get("projects:list:all")
	require.True(t, ok)
}

func TestRequestScopeClear(t *testing.T) {
	scope := NewRequestScope()
	scope.Set("a", []byte("1"))
	scope.Set("b", []byte("2"))
	scope.Clear()
	require.Equal(t, 0, scope.Len())
}

func TestRequestScopeFromContextWithoutScope(t *testing.T) {
	require.Nil(t, RequestScopeFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestRequestScopeMiddleware(t *testing.T) {
	var seenScope *RequestScope
	handler := RequestScopeMiddleware()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		seenScope = RequestScopeFromContext(r.Context())
		require.NotNil(t, seenScope)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seenScope)
	seenScope.Set("k", []byte("v"))

	// Each request gets its own scope.
	firstScope := seenScope
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotSame(t, firstScope, seenScope)
	_, ok := seenScope.Get("k")
	require.False(t, ok)
}
