/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package quotaconfig provides configuration for rate limiting: quota values per action
// scope, the limiting policy, the counter store selection and the degradation policy for
// counter store outages. Configuration is loaded from viper with mapstructure decoding
// and validated before anything is constructed from it.
package quotaconfig

import (
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/acronis/go-quotalimit/counterstore"
	"github.com/acronis/go-quotalimit/ratelimit"
)

// DefaultConfigKey is the viper sub-tree key the rate limiting configuration lives under.
const DefaultConfigKey = "rateLimit"

// Rate-limiting policies.
const (
	PolicyFixedWindow   = "fixed_window"
	PolicySlidingWindow = "sliding_window"
	PolicyLeakyBucket   = "leaky_bucket"
	PolicyTokenBucket   = "token_bucket"
)

// StoreType is a type of the counter store backing the fixed-window policy.
type StoreType string

// Counter store types.
const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreUnavailablePolicy tells the hosting middleware what to do with a request
// when the counter store cannot be reached.
type StoreUnavailablePolicy string

// Store unavailability policies.
const (
	StoreUnavailableAllow StoreUnavailablePolicy = "allow"
	StoreUnavailableDeny  StoreUnavailablePolicy = "deny"
)

// RedisStoreConfig represents a configuration of the Redis counter store.
type RedisStoreConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password          string        `mapstructure:"password" yaml:"password" json:"password"`
	DB                int           `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix         string        `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	ConnectTimeout    time.Duration `mapstructure:"connectTimeout" yaml:"connectTimeout" json:"connectTimeout"`
	ConnectMaxRetries int           `mapstructure:"connectMaxRetries" yaml:"connectMaxRetries" json:"connectMaxRetries"`
}

// StoreConfig represents a configuration of the counter store.
type StoreConfig struct {
	Type  StoreType        `mapstructure:"type" yaml:"type" json:"type"`
	Redis RedisStoreConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// Config represents a configuration of the rate limiting subsystem.
type Config struct {
	// Policy selects the limiting algorithm. PolicyFixedWindow is used if empty.
	Policy string `mapstructure:"policy" yaml:"policy" json:"policy"`

	// DefaultRate is the quota applied to scopes without an explicit entry in Scopes.
	// Required: unregistered scopes are never silently unlimited.
	DefaultRate RateValue `mapstructure:"defaultRate" yaml:"defaultRate" json:"defaultRate"`

	// Scopes maps action scope names to their quotas.
	Scopes map[string]RateValue `mapstructure:"scopes" yaml:"scopes" json:"scopes"`

	// Store selects the counter store for the fixed-window policy.
	// In-process policies (sliding window, leaky bucket, token bucket) ignore it.
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// OnStoreUnavailable selects the degradation policy for counter store outages.
	// StoreUnavailableAllow is used if empty.
	OnStoreUnavailable StoreUnavailablePolicy `mapstructure:"onStoreUnavailable" yaml:"onStoreUnavailable" json:"onStoreUnavailable"`

	// DryRun makes the hosting middleware log rejections without enforcing them.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// MaxKeys bounds the number of tracked (identity, scope) pairs for in-process policies.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	// MaxBurst is the burst size of the leaky bucket policy.
	MaxBurst int `mapstructure:"maxBurst" yaml:"maxBurst" json:"maxBurst"`

	// StoreTimeout bounds a single counter store round-trip of the fixed-window policy.
	StoreTimeout time.Duration `mapstructure:"storeTimeout" yaml:"storeTimeout" json:"storeTimeout"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Policy {
	case "", PolicyFixedWindow, PolicySlidingWindow, PolicyLeakyBucket, PolicyTokenBucket:
	default:
		return fmt.Errorf("unknown rate limit policy %q", c.Policy)
	}
	if c.DefaultRate.Duration <= 0 {
		return fmt.Errorf("default rate is required and its window must be positive")
	}
	if c.DefaultRate.Count < 0 {
		return fmt.Errorf("default rate count must not be negative, got %d", c.DefaultRate.Count)
	}
	for scope, rv := range c.Scopes {
		if scope == "" {
			return fmt.Errorf("scope name must not be empty")
		}
		if rv.Duration <= 0 {
			return fmt.Errorf("rate window for scope %q must be positive", scope)
		}
		if rv.Count < 0 {
			return fmt.Errorf("rate count for scope %q must not be negative, got %d", scope, rv.Count)
		}
	}
	switch c.Store.Type {
	case "", StoreTypeMemory:
	case StoreTypeRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the %q counter store", StoreTypeRedis)
		}
		if c.Policy != "" && c.Policy != PolicyFixedWindow {
			return fmt.Errorf("policy %q keeps its state in process and does not support the redis store", c.Policy)
		}
	default:
		return fmt.Errorf("unknown counter store type %q", c.Store.Type)
	}
	switch c.OnStoreUnavailable {
	case "", StoreUnavailableAllow, StoreUnavailableDeny:
	default:
		return fmt.Errorf("unknown store unavailability policy %q", c.OnStoreUnavailable)
	}
	return nil
}

// MakeRegistry builds a quota registry from the configured default and per-scope rates.
func (c *Config) MakeRegistry() (*ratelimit.QuotaRegistry, error) {
	registry, err := ratelimit.NewQuotaRegistry(c.DefaultRate.Quota())
	if err != nil {
		return nil, err
	}
	for scope, rv := range c.Scopes {
		if err := registry.Configure(scope, rv.Quota()); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// MakeLimiter assembles the limiter described by the configuration.
// The returned closer is non-nil when the counter store owns resources that must be
// released (the Redis store); the caller should close it on shutdown.
func (c *Config) MakeLimiter() (ratelimit.Limiter, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	registry, err := c.MakeRegistry()
	if err != nil {
		return nil, nil, err
	}

	switch c.Policy {
	case "", PolicyFixedWindow:
		store, closer, err := c.makeCounterStore()
		if err != nil {
			return nil, nil, err
		}
		lim := ratelimit.NewFixedWindowLimiterWithOpts(registry, store, ratelimit.FixedWindowLimiterOpts{
			StoreTimeout: c.StoreTimeout,
		})
		return lim, closer, nil
	case PolicySlidingWindow:
		lim, err := ratelimit.NewSlidingWindowLimiter(registry, c.MaxKeys)
		return lim, nil, err
	case PolicyLeakyBucket:
		return ratelimit.NewLeakyBucketLimiter(registry, c.MaxBurst, c.MaxKeys), nil, nil
	case PolicyTokenBucket:
		lim, err := ratelimit.NewTokenBucketLimiter(registry, c.MaxKeys)
		return lim, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown rate limit policy %q", c.Policy)
	}
}

func (c *Config) makeCounterStore() (ratelimit.CounterStore, io.Closer, error) {
	switch c.Store.Type {
	case "", StoreTypeMemory:
		return counterstore.NewInMemory(), nil, nil
	case StoreTypeRedis:
		rs, err := counterstore.NewRedis(counterstore.RedisConfig{
			Addr:              c.Store.Redis.Addr,
			Password:          c.Store.Redis.Password,
			DB:                c.Store.Redis.DB,
			KeyPrefix:         c.Store.Redis.KeyPrefix,
			ConnectTimeout:    c.Store.Redis.ConnectTimeout,
			ConnectMaxRetries: c.Store.Redis.ConnectMaxRetries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("new redis counter store: %w", err)
		}
		return rs, rs, nil
	default:
		return nil, nil, fmt.Errorf("unknown counter store type %q", c.Store.Type)
	}
}

// LoadConfigFromViper reads and validates the configuration from the viper sub-tree under key.
// DefaultConfigKey is used if key is empty.
func LoadConfigFromViper(v *viper.Viper, key string) (*Config, error) {
	if key == "" {
		key = DefaultConfigKey
	}
	var cfg Config
	if err := v.UnmarshalKey(key, &cfg, viper.DecodeHook(MapstructureDecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshal %q config: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure to handle custom types.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}
