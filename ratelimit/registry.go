/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
)

// QuotaRegistry holds the quota configured for each action scope.
// Scopes without an explicitly configured quota resolve to the default one,
// so an unregistered scope is never silently unlimited.
//
// All methods are safe for concurrent use.
type QuotaRegistry struct {
	mu           sync.RWMutex
	quotas       map[string]Quota
	defaultQuota Quota
}

// NewQuotaRegistry creates a new registry with the given default quota.
func NewQuotaRegistry(defaultQuota Quota) (*QuotaRegistry, error) {
	if err := defaultQuota.Validate(); err != nil {
		return nil, fmt.Errorf("default quota: %w", err)
	}
	return &QuotaRegistry{
		quotas:       make(map[string]Quota),
		defaultQuota: defaultQuota,
	}, nil
}

// MustNewQuotaRegistry is a version of NewQuotaRegistry that panics if an error occurs.
func MustNewQuotaRegistry(defaultQuota Quota) *QuotaRegistry {
	r, err := NewQuotaRegistry(defaultQuota)
	if err != nil {
		panic(err)
	}
	return r
}

// Configure registers or replaces the quota for a scope.
// It takes effect for all subsequent checks and does not retroactively affect
// windows that are already in flight.
func (r *QuotaRegistry) Configure(scope string, q Quota) error {
	if scope == "" {
		return fmt.Errorf("%w: scope must not be empty", ErrInvalidConfiguration)
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("quota for scope %q: %w", scope, err)
	}
	r.mu.Lock()
	r.quotas[scope] = q
	r.mu.Unlock()
	return nil
}

// Resolve returns the quota for the scope, falling back to the default quota
// when nothing is registered for it.
func (r *QuotaRegistry) Resolve(scope string) Quota {
	r.mu.RLock()
	q, ok := r.quotas[scope]
	r.mu.RUnlock()
	if !ok {
		return r.defaultQuota
	}
	return q
}
