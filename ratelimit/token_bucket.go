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

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type tokenBucketEntry struct {
	quota Quota
	lim   *rate.Limiter
}

// TokenBucketLimiter implements the token bucket algorithm on top of golang.org/x/time/rate.
// The bucket for a (identity, scope) pair starts full with quota.Limit tokens and refills
// at quota.Limit tokens per quota.Window. Unlike the fixed-window limiter it smooths
// admissions over the window instead of resetting the budget at window boundaries.
//
// All decisions are made against the caller-supplied now, so the limiter stays deterministic
// under test.
type TokenBucketLimiter struct {
	registry *QuotaRegistry

	mu   sync.Mutex
	keys *lru.Cache[string, tokenBucketEntry]
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
// DefaultMaxKeys is used if maxKeys is not positive.
func NewTokenBucketLimiter(registry *QuotaRegistry, maxKeys int) (*TokenBucketLimiter, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	keys, err := lru.New[string, tokenBucketEntry](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &TokenBucketLimiter{registry: registry, keys: keys}, nil
}

// Check reports whether one more event is allowed for identity in scope at now.
func (l *TokenBucketLimiter) Check(
	_ context.Context, identity, scope string, now time.Time,
) (Verdict, error) {
	if err := validateCheckArgs(identity, scope); err != nil {
		return Verdict{}, err
	}

	quota := l.registry.Resolve(scope)
	if quota.Limit == 0 {
		return Verdict{RetryAfter: quota.Window}, nil
	}

	lim := l.limiterForKey(UsageKey(identity, scope), quota)
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return Verdict{RetryAfter: quota.Window}, nil
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return Verdict{Allowed: true}, nil
	}
	res.CancelAt(now)
	return Verdict{RetryAfter: delay}, nil
}

func (l *TokenBucketLimiter) limiterForKey(key string, quota Quota) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys.Get(key)
	if ok && e.quota == quota {
		return e.lim
	}
	refillInterval := quota.Window / time.Duration(quota.Limit)
	lim := rate.NewLimiter(rate.Every(refillInterval), quota.Limit)
	l.keys.Add(key, tokenBucketEntry{quota: quota, lim: lim})
	return lim
}
