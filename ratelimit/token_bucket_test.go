/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// TokenBucketLimiterTestSuite contains tests for TokenBucketLimiter
type TokenBucketLimiterTestSuite struct {
	suite.Suite
}

func TestTokenBucketLimiter(t *testing.T) {
	suite.Run(t, new(TokenBucketLimiterTestSuite))
}

func (ts *TokenBucketLimiterTestSuite) TestBucketStartsFullAndRefills() {
	registry, err := NewQuotaRegistry(Quota{Limit: 2, Window: time.Second})
	ts.Require().NoError(err)
	limiter, err := NewTokenBucketLimiter(registry, 100)
	ts.Require().NoError(err)

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The bucket starts with the full budget of two tokens.
	verdict, err := limiter.Check(ctx, "u1", "default", base)
	ts.NoError(err)
	ts.True(verdict.Allowed)

	verdict, err = limiter.Check(ctx, "u1", "default", base)
	ts.NoError(err)
	ts.True(verdict.Allowed)

	// The next token arrives half a window later.
	verdict, err = limiter.Check(ctx, "u1", "default", base)
	ts.NoError(err)
	ts.False(verdict.Allowed)
	ts.Equal(500*time.Millisecond, verdict.RetryAfter)

	verdict, err = limiter.Check(ctx, "u1", "default", base.Add(500*time.Millisecond))
	ts.NoError(err)
	ts.True(verdict.Allowed)
}

func (ts *TokenBucketLimiterTestSuite) TestDeniedCheckDoesNotConsumeTokens() {
	registry, err := NewQuotaRegistry(Quota{Limit: 1, Window: time.Second})
	ts.Require().NoError(err)
	limiter, err := NewTokenBucketLimiter(registry, 100)
	ts.Require().NoError(err)

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	verdict, err := limiter.Check(ctx, "u1", "default", base)
	ts.NoError(err)
	ts.True(verdict.Allowed)

	// Repeated denials must not push the refill moment further away.
	for i := 0; i < 5; i++ {
		verdict, err = limiter.Check(ctx, "u1", "default", base)
		ts.NoError(err)
		ts.False(verdict.Allowed)
		ts.Equal(time.Second, verdict.RetryAfter)
	}

	verdict, err = limiter.Check(ctx, "u1", "default", base.Add(time.Second))
	ts.NoError(err)
	ts.True(verdict.Allowed)
}

func (ts *TokenBucketLimiterTestSuite) TestZeroLimitAlwaysDenies() {
	registry, err := NewQuotaRegistry(Quota{Limit: 10, Window: time.Minute})
	ts.Require().NoError(err)
	ts.Require().NoError(registry.Configure("closed", Quota{Limit: 0, Window: 10 * time.Second}))
	limiter, err := NewTokenBucketLimiter(registry, 100)
	ts.Require().NoError(err)

	verdict, err := limiter.Check(context.Background(), "u1", "closed", time.Now())
	ts.NoError(err)
	ts.False(verdict.Allowed)
	ts.Equal(10*time.Second, verdict.RetryAfter)
}
