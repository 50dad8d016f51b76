/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

type leakyBucketEntry struct {
	quota Quota
	lim   *throttled.GCRARateLimiterCtx
}

// LeakyBucketLimiter implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket
// variant algorithm. More details and good explanation of this alg is provided here:
// https://brandur.org/rate-limiting#gcra.
//
// One GCRA limiter is kept per scope; identities are keys inside that limiter's store.
type LeakyBucketLimiter struct {
	registry *QuotaRegistry
	maxBurst int
	maxKeys  int

	mu     sync.Mutex
	scopes map[string]leakyBucketEntry
}

// NewLeakyBucketLimiter creates a new leaky bucket rate limiter.
// DefaultMaxKeys is used if maxKeys is not positive.
func NewLeakyBucketLimiter(registry *QuotaRegistry, maxBurst, maxKeys int) *LeakyBucketLimiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &LeakyBucketLimiter{
		registry: registry,
		maxBurst: maxBurst,
		maxKeys:  maxKeys,
		scopes:   make(map[string]leakyBucketEntry),
	}
}

// Check reports whether one more event is allowed for identity in scope.
// GCRA keeps its own arrival-time state, now is not used for the decision.
func (l *LeakyBucketLimiter) Check(
	ctx context.Context, identity, scope string, _ time.Time,
) (Verdict, error) {
	if err := validateCheckArgs(identity, scope); err != nil {
		return Verdict{}, err
	}

	quota := l.registry.Resolve(scope)
	if quota.Limit == 0 {
		return Verdict{RetryAfter: quota.Window}, nil
	}

	lim, err := l.limiterForScope(scope, quota)
	if err != nil {
		return Verdict{}, err
	}
	limited, res, err := lim.RateLimitCtx(ctx, identity, 1)
	if err != nil {
		return Verdict{}, fmt.Errorf("rate limit: %w", err)
	}
	if limited {
		return Verdict{RetryAfter: res.RetryAfter}, nil
	}
	return Verdict{Allowed: true}, nil
}

func (l *LeakyBucketLimiter) limiterForScope(scope string, quota Quota) (*throttled.GCRARateLimiterCtx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.scopes[scope]
	if ok && e.quota == quota {
		return e.lim, nil
	}
	gcraStore, err := memstore.NewCtx(l.maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	reqQuota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(quota.Limit, quota.Window),
		MaxBurst: l.maxBurst,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, reqQuota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	l.scopes[scope] = leakyBucketEntry{quota: quota, lim: gcraLimiter}
	return gcraLimiter, nil
}
