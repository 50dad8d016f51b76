/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package counterstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// setupRedisClient connects to Redis on localhost:6379 and returns nil
// if it is not available (tests will be skipped).
func setupRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

func TestRedisIncrementWithTTL(t *testing.T) {
	client := setupRedisClient(t)
	if client == nil {
		t.Skip("Redis not available, skipping test")
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	store := NewRedisWithClient(client, "quotalimit_test:")
	key := "login:u1"
	t.Cleanup(func() { client.Del(ctx, "quotalimit_test:"+key) })

	count, expiresAfter, err := store.IncrementWithTTL(ctx, key, time.Minute, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Greater(t, expiresAfter, time.Duration(0))
	require.LessOrEqual(t, expiresAfter, time.Minute)

	count, _, err = store.IncrementWithTTL(ctx, key, time.Minute, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestRedisIncrementWithTTLExpiry(t *testing.T) {
	client := setupRedisClient(t)
	if client == nil {
		t.Skip("Redis not available, skipping test")
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	store := NewRedisWithClient(client, "quotalimit_test:")
	key := "expiry:u1"
	t.Cleanup(func() { client.Del(ctx, "quotalimit_test:"+key) })

	count, _, err := store.IncrementWithTTL(ctx, key, 100*time.Millisecond, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	time.Sleep(150 * time.Millisecond)

	count, _, err = store.IncrementWithTTL(ctx, key, 100*time.Millisecond, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRedisKeysAreIndependent(t *testing.T) {
	client := setupRedisClient(t)
	if client == nil {
		t.Skip("Redis not available, skipping test")
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	store := NewRedisWithClient(client, "quotalimit_test:")
	t.Cleanup(func() {
		client.Del(ctx, "quotalimit_test:login:u1", "quotalimit_test:login:u2")
	})

	count, _, err := store.IncrementWithTTL(ctx, "login:u1", time.Minute, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, _, err = store.IncrementWithTTL(ctx, "login:u2", time.Minute, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
