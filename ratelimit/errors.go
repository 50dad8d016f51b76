/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "errors"

var (
	// ErrInvalidConfiguration is returned when a quota or registry is constructed
	// with invalid parameters. It is raised at configuration time only, never during checks.
	ErrInvalidConfiguration = errors.New("invalid rate limit configuration")

	// ErrStoreUnavailable is returned by Check when the counter store could not be reached
	// within the configured timeout. The limiter itself does not decide how to degrade in
	// this case (fail-open vs fail-closed), that policy belongs to the caller.
	ErrStoreUnavailable = errors.New("counter store unavailable")
)
