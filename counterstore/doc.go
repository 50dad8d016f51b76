/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package counterstore provides implementations of the ratelimit.CounterStore contract:
// a process-local in-memory store and a Redis-backed one for sharing usage counters
// between multiple service instances.
package counterstore
