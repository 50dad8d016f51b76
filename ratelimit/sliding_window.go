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

	"github.com/RussellLuo/slidingwindow"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxKeys is the default bound for the number of (identity, scope) pairs
// tracked in memory by the in-process limiters.
const DefaultMaxKeys = 10000

type slidingWindowEntry struct {
	quota Quota
	lim   *slidingwindow.Limiter
}

// SlidingWindowLimiter implements the sliding window rate limiting algorithm.
// Its state lives in process memory, one window per (identity, scope) pair,
// bounded by an LRU zone of maxKeys entries.
type SlidingWindowLimiter struct {
	registry *QuotaRegistry

	mu   sync.Mutex
	keys *lru.Cache[string, slidingWindowEntry]
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// DefaultMaxKeys is used if maxKeys is not positive.
func NewSlidingWindowLimiter(registry *QuotaRegistry, maxKeys int) (*SlidingWindowLimiter, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	keys, err := lru.New[string, slidingWindowEntry](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{registry: registry, keys: keys}, nil
}

// Check reports whether one more event is allowed for identity in scope at now.
func (l *SlidingWindowLimiter) Check(
	_ context.Context, identity, scope string, now time.Time,
) (Verdict, error) {
	if err := validateCheckArgs(identity, scope); err != nil {
		return Verdict{}, err
	}

	quota := l.registry.Resolve(scope)
	if quota.Limit == 0 {
		return Verdict{RetryAfter: quota.Window}, nil
	}

	if l.limiterForKey(UsageKey(identity, scope), quota).Allow() {
		return Verdict{Allowed: true}, nil
	}
	retryAfter := now.Truncate(quota.Window).Add(quota.Window).Sub(now)
	return Verdict{RetryAfter: retryAfter}, nil
}

func (l *SlidingWindowLimiter) limiterForKey(key string, quota Quota) *slidingwindow.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys.Get(key)
	if ok && e.quota == quota {
		return e.lim
	}
	// A quota change rebuilds the window, in-flight events of the old one are dropped.
	lim, _ := slidingwindow.NewLimiter(
		quota.Window, int64(quota.Limit), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	l.keys.Add(key, slidingWindowEntry{quota: quota, lim: lim})
	return lim
}
