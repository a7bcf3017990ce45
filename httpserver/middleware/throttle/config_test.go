/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package throttle

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
)

const testThrottleConfigYAML = `
throttle:
  rateLimitZones:
    cacheAdmin:
      rateLimit: 10/m
      burstLimit: 2
    status_updates:
      alg: sliding_window
      rateLimit: 5/s
      key:
        type: remote_addr
      maxKeys: 1000
      excludedKeys: ["127.0.0.*"]
      responseRetryAfter: 3s
      dryRun: true
  rules:
    - alias: cache_admin
      routes:
        - methods: [DELETE]
          path: /api/portal/v1/cache/entries
      rateLimits:
        - zone: cacheAdmin
    - routes:
        - methods: [PATCH]
          path: /api/portal/v1/service-requests/*/status
      rateLimits:
        - zone: status_updates
`

func loadTestConfig(data string, dataType config.DataType) (*Config, error) {
	cfg := NewConfig("")
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), dataType, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("zones and rules", func(t *testing.T) {
		cfg, err := loadTestConfig(testThrottleConfigYAML, config.DataTypeYAML)
		require.NoError(t, err)

		require.Len(t, cfg.RateLimitZones, 2)
		zone, ok := cfg.zone("cacheAdmin")
		require.True(t, ok, "zone names are case-insensitive")
		require.Equal(t, RateLimitZoneConfig{
			RateLimit:  RateLimitValue{Count: 10, Duration: time.Minute},
			BurstLimit: 2,
		}, zone)

		zone, ok = cfg.zone("status_updates")
		require.True(t, ok)
		require.Equal(t, RateLimitZoneConfig{
			Alg:                RateLimitAlgSlidingWindow,
			RateLimit:          RateLimitValue{Count: 5, Duration: time.Second},
			Key:                ZoneKeyConfig{Type: ZoneKeyTypeRemoteAddr},
			MaxKeys:            1000,
			ExcludedKeys:       []string{"127.0.0.*"},
			ResponseRetryAfter: config.TimeDuration(3 * time.Second),
			DryRun:             true,
		}, zone)

		require.Len(t, cfg.Rules, 2)
		require.Equal(t, "cache_admin", cfg.Rules[0].Name())
		require.Equal(t, "PATCH /api/portal/v1/service-requests/*/status", cfg.Rules[1].Name())
	})

	t.Run("no throttling by default", func(t *testing.T) {
		cfg, err := loadTestConfig(`{}`, config.DataTypeJSON)
		require.NoError(t, err)
		require.Empty(t, cfg.RateLimitZones)
		require.Empty(t, cfg.Rules)
	})

	errTests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "malformed rate",
			cfgData: `{"throttle":{"rateLimitZones":{"z":{"rateLimit":"10 per second"}}}}`,
			wantErr: "incorrect format for rate",
		},
		{
			name:    "unknown unit",
			cfgData: `{"throttle":{"rateLimitZones":{"z":{"rateLimit":"10/d"}}}}`,
			wantErr: `incorrect unit in rate "10/d"`,
		},
		{
			name:    "missing rate",
			cfgData: `{"throttle":{"rateLimitZones":{"z":{"burstLimit":1}}}}`,
			wantErr: `validate rate limit zone "z": rate limit should be >= 1, got 0`,
		},
		{
			name:    "unknown alg",
			cfgData: `{"throttle":{"rateLimitZones":{"z":{"rateLimit":"1/s","alg":"token_bucket"}}}}`,
			wantErr: `validate rate limit zone "z": unknown rate limit alg "token_bucket"`,
		},
		{
			name:    "header key without name",
			cfgData: `{"throttle":{"rateLimitZones":{"z":{"rateLimit":"1/s","key":{"type":"header"}}}}}`,
			wantErr: `validate rate limit zone "z": header name should be specified for "header" key zone type`,
		},
		{
			name: "undefined zone",
			cfgData: `{"throttle":{"rules":[{"alias":"r","routes":[{"path":"/api"}],` +
				`"rateLimits":[{"zone":"missing"}]}]}}`,
			wantErr: `validate rule "r": rate limit zone "missing" is undefined`,
		},
		{
			name:    "rule without routes",
			cfgData: `{"throttle":{"rules":[{"alias":"r"}]}}`,
			wantErr: `validate rule "r": routes is missing`,
		},
		{
			name:    "relative route path",
			cfgData: `{"throttle":{"rules":[{"alias":"r","routes":[{"path":"api/*"}]}]}}`,
			wantErr: `validate rule "r": validate route #1: path "api/*" should start with "/"`,
		},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadTestConfig(tt.cfgData, config.DataTypeJSON)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRateLimitValue_String(t *testing.T) {
	require.Equal(t, "10/m", RateLimitValue{Count: 10, Duration: time.Minute}.String())
	require.Equal(t, "1/h", RateLimitValue{Count: 1, Duration: time.Hour}.String())
	require.Equal(t, "", RateLimitValue{}.String())
}
