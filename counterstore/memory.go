/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package counterstore

import (
	"context"
	"sync"
	"time"
)

const minSweepEntries = 1024

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// InMemory is a process-local counter store. Expiry is driven entirely by the
// caller-supplied now, which makes the store deterministic under test and gives
// exact window-boundary semantics: an entry whose expiry equals now is already expired.
//
// Expired entries are reclaimed opportunistically when the store grows, no background
// goroutine is involved.
type InMemory struct {
	mu        sync.Mutex
	entries   map[string]counterEntry
	nextSweep int
}

// NewInMemory creates a new in-memory counter store.
func NewInMemory() *InMemory {
	return &InMemory{
		entries:   make(map[string]counterEntry),
		nextSweep: minSweepEntries,
	}
}

// IncrementWithTTL implements the ratelimit.CounterStore contract.
func (s *InMemory) IncrementWithTTL(
	_ context.Context, key string, ttl time.Duration, now time.Time,
) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = counterEntry{count: 1, expiresAt: now.Add(ttl)}
	} else {
		e.count++
	}
	s.entries[key] = e

	if len(s.entries) >= s.nextSweep {
		s.sweep(now)
	}
	return e.count, e.expiresAt.Sub(now), nil
}

// Len returns the number of tracked counters, including the not yet reclaimed expired ones.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemory) sweep(now time.Time) {
	for k, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, k)
		}
	}
	next := len(s.entries) * 2
	if next < minSweepEntries {
		next = minSweepEntries
	}
	s.nextSweep = next
}
