/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// DefaultStoreTimeout bounds a single counter store round-trip.
const DefaultStoreTimeout = time.Second * 2

// CounterStore is a shared key-value store with expiry that keeps the usage counters
// for the fixed-window limiter.
type CounterStore interface {
	// IncrementWithTTL atomically increments the counter stored under key and returns
	// the post-increment count together with the remaining lifetime of the counter.
	// If the key is absent or already expired at now, the counter is created with
	// count 1 and the given TTL.
	//
	// The whole read-modify-write must be a single atomic operation, two concurrent
	// calls for the same key must never observe the same count.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration, now time.Time) (count int64, expiresAfter time.Duration, err error)
}

// FixedWindowLimiter counts events in fixed windows that start with the first event
// for a (identity, scope) pair. The window boundary is inclusive of the new window:
// a check arriving exactly when the previous window elapses starts a fresh one.
//
// Each check is exactly one atomic store operation, so the limiter is safe to share
// between processes when backed by a shared counter store.
type FixedWindowLimiter struct {
	registry     *QuotaRegistry
	store        CounterStore
	storeTimeout time.Duration
}

// FixedWindowLimiterOpts represents options for the fixed-window limiter.
type FixedWindowLimiterOpts struct {
	// StoreTimeout bounds a single counter store round-trip.
	// DefaultStoreTimeout is used if zero.
	StoreTimeout time.Duration
}

// NewFixedWindowLimiter creates a new fixed-window limiter on top of the given
// quota registry and counter store.
func NewFixedWindowLimiter(registry *QuotaRegistry, store CounterStore) *FixedWindowLimiter {
	return NewFixedWindowLimiterWithOpts(registry, store, FixedWindowLimiterOpts{})
}

// NewFixedWindowLimiterWithOpts is a configurable version of NewFixedWindowLimiter.
func NewFixedWindowLimiterWithOpts(
	registry *QuotaRegistry, store CounterStore, opts FixedWindowLimiterOpts,
) *FixedWindowLimiter {
	storeTimeout := opts.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &FixedWindowLimiter{registry: registry, store: store, storeTimeout: storeTimeout}
}

// Check reports whether one more event is allowed for identity in scope at now.
func (l *FixedWindowLimiter) Check(
	ctx context.Context, identity, scope string, now time.Time,
) (Verdict, error) {
	if err := validateCheckArgs(identity, scope); err != nil {
		return Verdict{}, err
	}

	quota := l.registry.Resolve(scope)
	if quota.Limit == 0 {
		// Nothing to count, the scope is fully closed.
		return Verdict{RetryAfter: quota.Window}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, expiresAfter, err := l.store.IncrementWithTTL(ctx, UsageKey(identity, scope), quota.Window, now)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if count <= int64(quota.Limit) {
		return Verdict{Allowed: true}, nil
	}
	if expiresAfter <= 0 {
		expiresAfter = quota.Window
	}
	return Verdict{RetryAfter: expiresAfter}, nil
}
