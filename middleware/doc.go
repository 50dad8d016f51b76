/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware binds the ratelimit package to net/http request pipelines.
// It extracts the caller identity and action scope from the request, asks the limiter
// for a verdict and translates a denial into an HTTP response with a Retry-After hint.
package middleware
