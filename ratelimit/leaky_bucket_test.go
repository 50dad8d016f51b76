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

// LeakyBucketLimiterTestSuite contains tests for LeakyBucketLimiter
type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowSequential() {
	registry, err := NewQuotaRegistry(Quota{Limit: 1, Window: time.Second})
	ts.Require().NoError(err)
	limiter := NewLeakyBucketLimiter(registry, 0, 100)

	ctx := context.Background()
	now := time.Now()

	verdict, err := limiter.Check(ctx, "u1", "default", now)
	ts.NoError(err)
	ts.True(verdict.Allowed)

	verdict, err = limiter.Check(ctx, "u1", "default", now)
	ts.NoError(err)
	ts.False(verdict.Allowed)
	ts.Greater(verdict.RetryAfter, time.Duration(0))
}

func (ts *LeakyBucketLimiterTestSuite) TestBurst() {
	registry, err := NewQuotaRegistry(Quota{Limit: 1, Window: time.Second})
	ts.Require().NoError(err)
	limiter := NewLeakyBucketLimiter(registry, 2, 100)

	ctx := context.Background()
	now := time.Now()

	// maxBurst extra events pass before the bucket overflows.
	for i := 0; i < 3; i++ {
		verdict, checkErr := limiter.Check(ctx, "u1", "default", now)
		ts.NoError(checkErr)
		ts.True(verdict.Allowed)
	}
	verdict, err := limiter.Check(ctx, "u1", "default", now)
	ts.NoError(err)
	ts.False(verdict.Allowed)
}

func (ts *LeakyBucketLimiterTestSuite) TestScopesAreIndependent() {
	registry, err := NewQuotaRegistry(Quota{Limit: 1, Window: time.Second})
	ts.Require().NoError(err)
	limiter := NewLeakyBucketLimiter(registry, 0, 100)

	ctx := context.Background()
	now := time.Now()

	verdict, err := limiter.Check(ctx, "u1", "login", now)
	ts.NoError(err)
	ts.True(verdict.Allowed)

	verdict, err = limiter.Check(ctx, "u1", "search", now)
	ts.NoError(err)
	ts.True(verdict.Allowed)
}

func (ts *LeakyBucketLimiterTestSuite) TestZeroLimitAlwaysDenies() {
	registry, err := NewQuotaRegistry(Quota{Limit: 10, Window: time.Minute})
	ts.Require().NoError(err)
	ts.Require().NoError(registry.Configure("closed", Quota{Limit: 0, Window: 10 * time.Second}))
	limiter := NewLeakyBucketLimiter(registry, 0, 100)

	verdict, err := limiter.Check(context.Background(), "u1", "closed", time.Now())
	ts.NoError(err)
	ts.False(verdict.Allowed)
	ts.Equal(10*time.Second, verdict.RetryAfter)
}
