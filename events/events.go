/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package events publishes the outcomes of rate limit checks to an external stream
// for audit and offline analysis. Publishing is best-effort and asynchronous, it must
// never delay or change the verdict of a request.
package events

import (
	"context"
	"time"
)

// Event describes the outcome of a single rate limit check.
type Event struct {
	Identity   string        `json:"identity"`
	Scope      string        `json:"scope"`
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retryAfterNs,omitempty"`
	Path       string        `json:"path,omitempty"`
	Timestamp  int64         `json:"timestamp"`
}

// Publisher publishes rate limit events. Implementations must not block the request path.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish implements the Publisher interface.
func (NopPublisher) Publish(_ context.Context, _ Event) {}
