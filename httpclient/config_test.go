/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
)

func loadTestConfig(data string) (*Config, error) {
	cfg := &Config{}
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfigWithLoader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadTestConfig(``)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("all values", func(t *testing.T) {
		cfg, err := loadTestConfig(`
timeout: 30s
rateLimits:
  enabled: true
  limit: 300
  burst: 30
  waitTimeout: 3s
log:
  enabled: true
  mode: all
  slowRequestThreshold: 500ms
metrics:
  enabled: false
`)
		require.NoError(t, err)
		require.Equal(t, &Config{
			Timeout: config.TimeDuration(30 * time.Second),
			RateLimits: RateLimitConfig{
				Enabled:     true,
				Limit:       300,
				Burst:       30,
				WaitTimeout: config.TimeDuration(3 * time.Second),
			},
			Log: LogConfig{
				Enabled:              true,
				Mode:                 string(LoggerModeAll),
				SlowRequestThreshold: config.TimeDuration(500 * time.Millisecond),
			},
			Metrics: MetricsConfig{Enabled: false},
		}, cfg)
		require.Equal(t, LoggerModeAll, cfg.Log.TransportOpts().Mode)
		require.Equal(t, 3*time.Second, cfg.RateLimits.TransportOpts().WaitTimeout)
	})
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "zero timeout",
			data:    `timeout: 0s`,
			wantErr: "timeout: must be positive, got 0s",
		},
		{
			name:    "non positive rate limit",
			data:    "rateLimits:\n  enabled: true\n  limit: 0",
			wantErr: "rateLimits.limit: must be positive, got 0",
		},
		{
			name:    "negative burst",
			data:    "rateLimits:\n  enabled: true\n  limit: 10\n  burst: -1",
			wantErr: "rateLimits.burst: must not be negative, got -1",
		},
		{
			name:    "negative slow request threshold",
			data:    "log:\n  slowRequestThreshold: -1s",
			wantErr: "log.slowRequestThreshold: must not be negative, got -1s",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadTestConfig(tt.data)
			require.EqualError(t, err, tt.wantErr)
		})
	}

	_, err := loadTestConfig("log:\n  mode: verbose")
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.mode")
}
