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

// Quota describes how many events are allowed for a single action scope within a window.
// A zero Limit is a valid quota that denies every event with retry-after equal to Window.
type Quota struct {
	Limit  int
	Window time.Duration
}

// Validate checks that the quota may be registered.
func (q Quota) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidConfiguration, q.Limit)
	}
	if q.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfiguration, q.Window)
	}
	return nil
}

// Verdict is the result of a single quota check.
// RetryAfter is meaningful only when Allowed is false.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by identity may perform one more event
// in the given action scope. Implementations never read the system clock for the decision,
// the caller supplies now (time.Now() in production, a fixed value in tests).
//
// Quota exhaustion is not an error: a denied check returns a Verdict with Allowed == false
// and a nil error. A non-nil error means the check itself could not be performed.
type Limiter interface {
	Check(ctx context.Context, identity, scope string, now time.Time) (Verdict, error)
}

// UsageKey builds the counter key for the (identity, scope) pair.
// Distinct scopes get independent counters for the same identity.
func UsageKey(identity, scope string) string {
	return scope + ":" + identity
}

func validateCheckArgs(identity, scope string) error {
	if identity == "" {
		return fmt.Errorf("identity must not be empty")
	}
	if scope == "" {
		return fmt.Errorf("scope must not be empty")
	}
	return nil
}
