/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quotaconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-quotalimit/ratelimit"
)

func loadFromYAML(t *testing.T, yamlData string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yamlData)))
	return LoadConfigFromViper(v, DefaultConfigKey)
}

func TestLoadConfigFromViper(t *testing.T) {
	cfg, err := loadFromYAML(t, `
rateLimit:
  policy: fixed_window
  defaultRate: 100/m
  scopes:
    login: 3/m
    search: 30/10s
  store:
    type: redis
    redis:
      addr: localhost:6379
      keyPrefix: "myservice:"
      connectTimeout: 2s
  onStoreUnavailable: deny
  dryRun: true
  storeTimeout: 500ms
`)
	require.NoError(t, err)

	require.Equal(t, PolicyFixedWindow, cfg.Policy)
	require.Equal(t, RateValue{Count: 100, Duration: time.Minute}, cfg.DefaultRate)
	require.Equal(t, RateValue{Count: 3, Duration: time.Minute}, cfg.Scopes["login"])
	require.Equal(t, RateValue{Count: 30, Duration: 10 * time.Second}, cfg.Scopes["search"])
	require.Equal(t, StoreTypeRedis, cfg.Store.Type)
	require.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	require.Equal(t, "myservice:", cfg.Store.Redis.KeyPrefix)
	require.Equal(t, 2*time.Second, cfg.Store.Redis.ConnectTimeout)
	require.Equal(t, StoreUnavailableDeny, cfg.OnStoreUnavailable)
	require.True(t, cfg.DryRun)
	require.Equal(t, 500*time.Millisecond, cfg.StoreTimeout)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		yamlData string
		wantErr  string
	}{
		{
			name: "unknown policy",
			yamlData: `
rateLimit:
  policy: magic
  defaultRate: 100/m
`,
			wantErr: "unknown rate limit policy",
		},
		{
			name: "missing default rate",
			yamlData: `
rateLimit:
  policy: fixed_window
`,
			wantErr: "default rate is required",
		},
		{
			name: "redis store without address",
			yamlData: `
rateLimit:
  defaultRate: 100/m
  store:
    type: redis
`,
			wantErr: "redis address is required",
		},
		{
			name: "in-process policy with redis store",
			yamlData: `
rateLimit:
  policy: sliding_window
  defaultRate: 100/m
  store:
    type: redis
    redis:
      addr: localhost:6379
`,
			wantErr: "does not support the redis store",
		},
		{
			name: "unknown store unavailability policy",
			yamlData: `
rateLimit:
  defaultRate: 100/m
  onStoreUnavailable: explode
`,
			wantErr: "unknown store unavailability policy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFromYAML(t, tt.yamlData)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigMakeLimiter(t *testing.T) {
	t.Run("fixed window with memory store", func(t *testing.T) {
		cfg := &Config{
			DefaultRate: RateValue{Count: 100, Duration: time.Minute},
			Scopes:      map[string]RateValue{"login": {Count: 3, Duration: time.Minute}},
		}
		lim, closer, err := cfg.MakeLimiter()
		require.NoError(t, err)
		require.Nil(t, closer)
		require.IsType(t, &ratelimit.FixedWindowLimiter{}, lim)
	})

	t.Run("sliding window", func(t *testing.T) {
		cfg := &Config{
			Policy:      PolicySlidingWindow,
			DefaultRate: RateValue{Count: 100, Duration: time.Minute},
		}
		lim, closer, err := cfg.MakeLimiter()
		require.NoError(t, err)
		require.Nil(t, closer)
		require.IsType(t, &ratelimit.SlidingWindowLimiter{}, lim)
	})

	t.Run("leaky bucket", func(t *testing.T) {
		cfg := &Config{
			Policy:      PolicyLeakyBucket,
			DefaultRate: RateValue{Count: 100, Duration: time.Minute},
			MaxBurst:    5,
		}
		lim, closer, err := cfg.MakeLimiter()
		require.NoError(t, err)
		require.Nil(t, closer)
		require.IsType(t, &ratelimit.LeakyBucketLimiter{}, lim)
	})

	t.Run("token bucket", func(t *testing.T) {
		cfg := &Config{
			Policy:      PolicyTokenBucket,
			DefaultRate: RateValue{Count: 100, Duration: time.Minute},
		}
		lim, closer, err := cfg.MakeLimiter()
		require.NoError(t, err)
		require.Nil(t, closer)
		require.IsType(t, &ratelimit.TokenBucketLimiter{}, lim)
	})

	t.Run("scope quotas are registered", func(t *testing.T) {
		cfg := &Config{
			DefaultRate: RateValue{Count: 100, Duration: time.Minute},
			Scopes:      map[string]RateValue{"login": {Count: 3, Duration: time.Minute}},
		}
		registry, err := cfg.MakeRegistry()
		require.NoError(t, err)
		require.Equal(t, ratelimit.Quota{Limit: 3, Window: time.Minute}, registry.Resolve("login"))
		require.Equal(t, ratelimit.Quota{Limit: 100, Window: time.Minute}, registry.Resolve("other"))
	})
}
