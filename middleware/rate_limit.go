/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-quotalimit/events"
	"github.com/acronis/go-quotalimit/ratelimit"
)

// DefaultScope is the action scope used when no scope selector is configured
// and no route rule matches the request.
const DefaultScope = "default"

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected because the quota is exhausted.
const RateLimitErrCode = "tooManyRequests"

// Names of the logged fields.
const (
	identityLogFieldKey  = "rate_limit_identity"
	scopeLogFieldKey     = "rate_limit_scope"
	userAgentLogFieldKey = "user_agent"
)

// OnStoreUnavailablePolicy tells the middleware what to do with a request when the
// counter store cannot be reached. The core limiter never makes this decision itself.
type OnStoreUnavailablePolicy int

// Store unavailability policies.
const (
	// FailOpen serves the request as if it were allowed.
	FailOpen OnStoreUnavailablePolicy = iota
	// FailClosed rejects the request like an exhausted quota.
	FailClosed
)

// GetIdentityFunc extracts the caller identity from the request.
// Returns identity, bypass (whether to skip rate limiting for this request), and error.
type GetIdentityFunc func(r *http.Request) (identity string, bypass bool, err error)

// GetScopeFunc selects the action scope for the request.
type GetScopeFunc func(r *http.Request) string

// GetRetryAfterFunc is a function that is called to get a value for Retry-After response
// HTTP header when the rate limit is exceeded.
type GetRetryAfterFunc func(r *http.Request, estimatedTime time.Duration) time.Duration

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain          string
	ResponseStatusCode int
	GetRetryAfter      GetRetryAfterFunc
	Identity           string
	Scope              string
	RetryAfter         time.Duration
}

// OnRejectFunc is a function that is called for rejecting the HTTP request
// when the quota is exhausted.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger *logf.Logger)

// OnErrorFunc is a function that is called when an error occurs during rate limiting.
type OnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger *logf.Logger)

// RateLimitOpts represents options for the RateLimit middleware.
type RateLimitOpts struct {
	// GetIdentity extracts the caller identity. Defaults to the request's remote address host.
	GetIdentity GetIdentityFunc

	// GetScope selects the action scope. Defaults to DefaultScope for every request.
	GetScope GetScopeFunc

	// Now supplies the current time for quota checks. Defaults to time.Now.
	Now func() time.Time

	// ResponseStatusCode is the status code of rejection responses. Defaults to 429.
	ResponseStatusCode int

	GetRetryAfter GetRetryAfterFunc

	// OnStoreUnavailable selects fail-open or fail-closed behavior for store outages.
	OnStoreUnavailable OnStoreUnavailablePolicy

	// DryRun logs rejections without enforcing them.
	DryRun bool

	OnReject         OnRejectFunc
	OnRejectInDryRun OnRejectFunc
	OnError          OnErrorFunc

	// Logger may be nil, in which case the middleware is silent.
	Logger *logf.Logger

	// Metrics may be nil, in which case no metrics are collected.
	Metrics *MetricsCollector

	// EventPublisher, when set, receives an event for every denied request.
	EventPublisher events.Publisher
}

type rateLimitHandler struct {
	next      http.Handler
	limiter   ratelimit.Limiter
	errDomain string

	getIdentity        GetIdentityFunc
	getScope           GetScopeFunc
	now                func() time.Time
	respStatusCode     int
	getRetryAfter      GetRetryAfterFunc
	onStoreUnavailable OnStoreUnavailablePolicy
	dryRun             bool
	onReject           OnRejectFunc
	onError            OnErrorFunc
	logger             *logf.Logger
	metrics            *MetricsCollector
	eventPublisher     events.Publisher
}

// RateLimit is a middleware that limits the rate of HTTP requests using the passed limiter.
func RateLimit(limiter ratelimit.Limiter, errDomain string) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(limiter, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(
	limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts,
) func(next http.Handler) http.Handler {
	getIdentity := opts.GetIdentity
	if getIdentity == nil {
		getIdentity = GetIdentityFromRemoteAddr
	}
	getScope := opts.GetScope
	if getScope == nil {
		getScope = func(_ *http.Request) string { return DefaultScope }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	getRetryAfter := opts.GetRetryAfter
	if getRetryAfter == nil {
		getRetryAfter = GetRetryAfterEstimatedTime
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:               next,
			limiter:            limiter,
			errDomain:          errDomain,
			getIdentity:        getIdentity,
			getScope:           getScope,
			now:                now,
			respStatusCode:     respStatusCode,
			getRetryAfter:      getRetryAfter,
			onStoreUnavailable: opts.OnStoreUnavailable,
			dryRun:             opts.DryRun,
			onReject:           makeOnRejectFunc(opts),
			onError:            makeOnErrorFunc(opts),
			logger:             opts.Logger,
			metrics:            opts.Metrics,
			eventPublisher:     opts.EventPublisher,
		}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	identity, bypass, err := h.getIdentity(r)
	if err != nil {
		h.onError(rw, r, h.makeParams(identity, "", 0), err, h.next, h.logger)
		return
	}
	if bypass { // Rate limiting is bypassed for this request.
		h.next.ServeHTTP(rw, r)
		return
	}

	scope := h.getScope(r)
	verdict, err := h.limiter.Check(r.Context(), identity, scope, h.now())
	if err != nil {
		if errors.Is(err, ratelimit.ErrStoreUnavailable) {
			h.serveStoreUnavailable(rw, r, identity, scope, err)
			return
		}
		h.onError(rw, r, h.makeParams(identity, scope, 0), err, h.next, h.logger)
		return
	}

	if verdict.Allowed {
		h.next.ServeHTTP(rw, r)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveReject(scope, h.dryRun)
	}
	if h.eventPublisher != nil {
		h.eventPublisher.Publish(r.Context(), events.Event{
			Identity:   identity,
			Scope:      scope,
			Allowed:    false,
			RetryAfter: verdict.RetryAfter,
			Path:       r.URL.Path,
			Timestamp:  h.now().UnixNano(),
		})
	}
	h.onReject(rw, r, h.makeParams(identity, scope, verdict.RetryAfter), h.next, h.logger)
}

func (h *rateLimitHandler) serveStoreUnavailable(
	rw http.ResponseWriter, r *http.Request, identity, scope string, err error,
) {
	if h.metrics != nil {
		h.metrics.ObserveStoreError(scope)
	}
	switch h.onStoreUnavailable {
	case FailClosed:
		if h.logger != nil {
			h.logger.Error("counter store unavailable, rejecting request",
				logf.Error(err),
				logf.String(identityLogFieldKey, identity),
				logf.String(scopeLogFieldKey, scope),
			)
		}
		h.onReject(rw, r, h.makeParams(identity, scope, 0), h.next, h.logger)
	default: // FailOpen
		if h.logger != nil {
			h.logger.Warn("counter store unavailable, serving request",
				logf.Error(err),
				logf.String(identityLogFieldKey, identity),
				logf.String(scopeLogFieldKey, scope),
			)
		}
		h.next.ServeHTTP(rw, r)
	}
}

func (h *rateLimitHandler) makeParams(identity, scope string, retryAfter time.Duration) RateLimitParams {
	return RateLimitParams{
		ErrDomain:          h.errDomain,
		ResponseStatusCode: h.respStatusCode,
		GetRetryAfter:      h.getRetryAfter,
		Identity:           identity,
		Scope:              scope,
		RetryAfter:         retryAfter,
	}
}

// GetIdentityFromRemoteAddr extracts the caller identity from the request's remote address.
func GetIdentityFromRemoteAddr(r *http.Request) (identity string, bypass bool, err error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}

// GetRetryAfterEstimatedTime returns estimated time after that the client may retry the request.
func GetRetryAfterEstimatedTime(_ *http.Request, estimatedTime time.Duration) time.Duration {
	return estimatedTime
}

// DefaultOnReject sends an HTTP response with the configured status code,
// a Retry-After header and a JSON error body when the quota is exhausted.
func DefaultOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, _ http.Handler, logger *logf.Logger,
) {
	if logger != nil {
		logger.Warn("too many requests",
			logf.String(identityLogFieldKey, params.Identity),
			logf.String(scopeLogFieldKey, params.Scope),
			logf.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.GetRetryAfter != nil {
		if retryAfter := params.GetRetryAfter(r, params.RetryAfter); retryAfter > 0 {
			rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		}
	}
	RespondError(rw, params.ResponseStatusCode, NewError(params.ErrDomain, RateLimitErrCode, "Too many requests."), logger)
}

// DefaultOnRejectInDryRun logs the rejection and serves the request anyway.
func DefaultOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger *logf.Logger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			logf.String(identityLogFieldKey, params.Identity),
			logf.String(scopeLogFieldKey, params.Scope),
			logf.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

// DefaultOnError sends an internal error response when rate limiting itself fails.
func DefaultOnError(
	rw http.ResponseWriter, _ *http.Request, params RateLimitParams, err error, _ http.Handler, logger *logf.Logger,
) {
	if logger != nil {
		logger.Error(err.Error(), logf.String(identityLogFieldKey, params.Identity))
	}
	RespondInternalError(rw, params.ErrDomain, logger)
}

func makeOnRejectFunc(opts RateLimitOpts) OnRejectFunc {
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

func makeOnErrorFunc(opts RateLimitOpts) OnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultOnError
}
