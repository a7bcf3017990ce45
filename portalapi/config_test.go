/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package portalapi

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/httpclient"
	"github.com/bigschom/ss-portal/retry"
)

func TestConfigWithLoader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig("")
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`
backend:
  baseURL: https://portal.example.com
`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "https://portal.example.com", cfg.BaseURL)
		require.Empty(t, cfg.APIKey)
		require.Equal(t, DefaultAuditLogsTTL, cfg.AuditLogsTTL.Duration())
		require.Equal(t, *httpclient.NewDefaultConfig(), cfg.HTTPClient)
		require.Equal(t, retry.Config{
			Enabled:         true,
			MaxAttempts:     retry.DefaultMaxAttempts,
			Strategy:        retry.StrategyExponential,
			InitialInterval: config.TimeDuration(retry.DefaultInitialInterval),
		}, cfg.Retries)
	})

	t.Run("custom prefix and all values", func(t *testing.T) {
		cfg := NewConfig("portal.backend")
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`
portal:
  backend:
    baseURL: http://127.0.0.1:54321
    apiKey: anon-key
    auditLogsTTL: 10s
    timeout: 3s
    rateLimits:
      enabled: true
      limit: 20
      burst: 5
    retries:
      enabled: true
      maxAttempts: 5
      strategy: constant
      initialInterval: 50ms
`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "portal.backend", cfg.KeyPrefix())
		require.Equal(t, "anon-key", cfg.APIKey)
		require.Equal(t, 10*time.Second, cfg.AuditLogsTTL.Duration())
		require.Equal(t, 3*time.Second, cfg.HTTPClient.Timeout.Duration())
		require.Equal(t, httpclient.RateLimitConfig{
			Enabled: true, Limit: 20, Burst: 5, WaitTimeout: config.TimeDuration(httpclient.DefaultRateLimitWaitTimeout),
		}, cfg.HTTPClient.RateLimits)
		require.Equal(t, 5, cfg.Retries.MaxAttempts)
		require.IsType(t, retry.ConstantBackoffPolicy{}, cfg.Retries.Policy())
	})
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing base URL",
			data:    "backend:\n  apiKey: key",
			wantErr: "backend.baseURL: must not be empty",
		},
		{
			name:    "unsupported scheme",
			data:    "backend:\n  baseURL: ftp://portal.example.com",
			wantErr: `backend.baseURL: scheme must be http or https, got "ftp"`,
		},
		{
			name:    "zero audit logs ttl",
			data:    "backend:\n  baseURL: http://localhost\n  auditLogsTTL: 0s",
			wantErr: "backend.auditLogsTTL: must be positive, got 0s",
		},
		{
			name:    "invalid rate limit",
			data:    "backend:\n  baseURL: http://localhost\n  rateLimits:\n    enabled: true\n    limit: -1",
			wantErr: "backend.rateLimits.limit: must be positive, got -1",
		},
		{
			name:    "negative retries",
			data:    "backend:\n  baseURL: http://localhost\n  retries:\n    maxAttempts: -1",
			wantErr: "backend.retries.maxAttempts: should be >= 0",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.data), config.DataTypeYAML, NewConfig(""))
			require.EqualError(t, err, tt.wantErr)
		})
	}
}
