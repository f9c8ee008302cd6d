/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Identity describes the already-authenticated caller. It is produced by the
// upstream auth layer; this package only reads it.
type Identity struct {
	UserID  string
	Admin   bool
	Service bool
}

type ctxKeyIdentity struct{}

// NewContextWithIdentity creates a new context with the caller identity.
func NewContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

// IdentityFromContext extracts the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return identity, ok
}

const (
	apiKeyHeader         = "X-API-Key"
	serviceAccountHeader = "X-Service-Account"
	forwardedForHeader   = "X-Forwarded-For"

	// apiKeyPrefixLen bounds how much of an API key may appear in a bucket
	// key (and so in logs). The full key never leaves the request.
	apiKeyPrefixLen = 16
)

// ClientKey resolves the rate-limiting key for the request, most specific
// identity first: authenticated user ID, truncated API-key prefix, first hop
// of the X-Forwarded-For chain, direct connection address, literal "unknown".
func ClientKey(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		return "user:" + identity.UserID
	}
	if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
		if len(apiKey) > apiKeyPrefixLen {
			apiKey = apiKey[:apiKeyPrefixLen]
		}
		return "key:" + apiKey
	}
	if forwarded := r.Header.Get(forwardedForHeader); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// ClientTierFromRequest resolves the caller tier for the request.
func ClientTierFromRequest(r *http.Request) ClientTier {
	if identity, ok := IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		switch {
		case identity.Service:
			return TierService
		case identity.Admin:
			return TierAdmin
		default:
			return TierAuthenticated
		}
	}
	if r.Header.Get(serviceAccountHeader) != "" {
		return TierService
	}
	return TierPublic
}
