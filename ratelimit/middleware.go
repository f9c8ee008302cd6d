/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"
	"github.com/vasayxtx/go-glob"
)

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware.
const RateLimitErrCode = "tooManyRequests"

// RateLimitLogFieldKey is the name of the logged field that contains the
// client key the decision was made for.
const RateLimitLogFieldKey = "rate_limit_key"

const userAgentLogFieldKey = "user_agent"

// Rate-limit response headers.
const (
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// DefaultBypassPaths are the paths the middleware skips by default.
var DefaultBypassPaths = []string{"/health", "/ready"}

// RejectParams contains data that relates to a rejected request and is passed
// to the OnRejectFunc.
type RejectParams struct {
	Decision           Decision
	ErrDomain          string
	ResponseStatusCode int
}

// OnRejectFunc is a function that is called for rejecting an HTTP request
// when the rate limit is exceeded.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request,
	params RejectParams, next http.Handler, logger log.FieldLogger)

// MiddlewareOpts represents options for the rate-limiting middleware.
type MiddlewareOpts struct {
	// BypassPaths are glob patterns of request paths that are never limited.
	// If nil, DefaultBypassPaths is used.
	BypassPaths []string

	// ResponseStatusCode is the status code sent on reject.
	// Defaults to 429 Too Many Requests.
	ResponseStatusCode int

	// DryRun makes the middleware log would-be rejects and serve the request anyway.
	DryRun bool

	OnReject         OnRejectFunc
	OnRejectInDryRun OnRejectFunc
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        *RequestLimiter
	bypassPaths    []func(string) bool
	errDomain      string
	respStatusCode int
	onReject       OnRejectFunc
}

// Middleware returns a middleware that limits the rate of HTTP requests
// using the passed RequestLimiter.
func Middleware(limiter *RequestLimiter, errDomain string) func(next http.Handler) http.Handler {
	return MiddlewareWithOpts(limiter, errDomain, MiddlewareOpts{})
}

// MiddlewareWithOpts is a configurable version of the rate-limiting middleware.
func MiddlewareWithOpts(limiter *RequestLimiter, errDomain string, opts MiddlewareOpts) func(next http.Handler) http.Handler {
	bypassPatterns := opts.BypassPaths
	if bypassPatterns == nil {
		bypassPatterns = DefaultBypassPaths
	}
	bypassPaths := make([]func(string) bool, 0, len(bypassPatterns))
	for _, pattern := range bypassPatterns {
		bypassPaths = append(bypassPaths, glob.Compile(pattern))
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			bypassPaths:    bypassPaths,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			onReject:       makeOnRejectFunc(opts),
		}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	for _, matches := range h.bypassPaths {
		if matches(r.URL.Path) {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	decision := h.limiter.AllowRequest(r)
	setRateLimitHeaders(rw.Header(), decision)

	if decision.Allowed {
		h.next.ServeHTTP(rw, r)
		return
	}
	params := RejectParams{
		Decision:           decision,
		ErrDomain:          h.errDomain,
		ResponseStatusCode: h.respStatusCode,
	}
	h.onReject(rw, r, params, h.next, middleware.GetLoggerFromContext(r.Context()))
}

func setRateLimitHeaders(header http.Header, decision Decision) {
	header.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	header.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	header.Set(HeaderRateLimitReset, strconv.FormatInt(time.Now().Add(decision.Window).Unix(), 10))
}

// DefaultOnReject sends an HTTP response with the Retry-After header
// when the rate limit is exceeded.
func DefaultOnReject(
	rw http.ResponseWriter, r *http.Request, params RejectParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(RateLimitLogFieldKey, params.Decision.Key),
			log.String("tier", string(params.Decision.Tier)),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	retryAfterSec := int(math.Ceil(params.Decision.RetryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	rw.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSec))
	apiErr := restapi.NewError(params.ErrDomain, RateLimitErrCode, "Too many requests.")
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultOnRejectInDryRun logs the would-be reject and serves the request.
func DefaultOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RejectParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Decision.Key),
			log.String("tier", string(params.Decision.Tier)),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

func makeOnRejectFunc(opts MiddlewareOpts) OnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultOnReject
}
