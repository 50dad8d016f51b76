/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides quota-based rate limiting for opaque caller identities
// grouped by action scopes. Quotas are held in a QuotaRegistry and enforced by one of
// the limiter implementations (fixed window, sliding window, leaky bucket, token bucket)
// behind the common Limiter interface. The fixed-window limiter keeps its usage counters
// in an external CounterStore and is the only one suitable for sharing state between
// multiple processes.
package ratelimit
