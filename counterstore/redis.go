/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package counterstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisConnectTimeout bounds the initial connectivity check in NewRedis.
const DefaultRedisConnectTimeout = time.Second * 5

// DefaultRedisConnectMaxRetries is the default number of ping retries in NewRedis.
const DefaultRedisConnectMaxRetries = 3

// incrWithTTLScript increments the counter and returns {count, remaining TTL in ms}
// as a single atomic operation. The TTL is set only by the first increment, so the
// window start is pinned to the first event. The ttl < 0 branch covers counters that
// survived without an expiry (e.g. a PEXPIRE lost to an eviction), they are given
// a fresh window instead of living forever.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisConfig represents a configuration of the Redis counter store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every counter key. Lets several services share one Redis.
	KeyPrefix string

	// ConnectTimeout bounds the connectivity check performed by NewRedis.
	// DefaultRedisConnectTimeout is used if zero.
	ConnectTimeout time.Duration

	// ConnectMaxRetries is the number of ping retries with exponential backoff.
	// DefaultRedisConnectMaxRetries is used if zero.
	ConnectMaxRetries int
}

// Redis is a counter store backed by a shared Redis instance.
//
// The caller-supplied now is ignored: for a store shared between processes the Redis
// server clock is authoritative, per-caller clocks cannot be meaningfully ordered.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis creates a new Redis counter store and verifies connectivity,
// retrying the ping with exponential backoff.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultRedisConnectTimeout
	}
	maxRetries := cfg.ConnectMaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultRedisConnectMaxRetries
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)
	if err := backoff.Retry(func() error { return client.Ping(ctx).Err() }, b); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewRedisWithClient wraps an already configured client. The caller keeps ownership
// of the client's lifecycle.
func NewRedisWithClient(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

// Close closes the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}

// IncrementWithTTL implements the ratelimit.CounterStore contract.
func (s *Redis) IncrementWithTTL(
	ctx context.Context, key string, ttl time.Duration, _ time.Time,
) (int64, time.Duration, error) {
	res, err := incrWithTTLScript.Run(ctx, s.client, []string{s.keyPrefix + key}, ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("incr with ttl: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected incr with ttl script result: %v", res)
	}
	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected count type %T in script result", res[0])
	}
	ttlMs, ok := res[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected TTL type %T in script result", res[1])
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}
