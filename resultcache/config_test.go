/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package resultcache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfgData  string
		wantOpts Opts
		wantErr  string
	}{
		{
			name:     "defaults",
			cfgData:  `{}`,
			wantOpts: Opts{TTL: DefaultTTL, ErrorWindow: DefaultErrorWindow, MaxEntries: DefaultMaxEntries},
		},
		{
			name:     "custom values",
			cfgData:  `{"cache":{"ttl":"1m","errorWindow":"2s","maxEntries":500}}`,
			wantOpts: Opts{TTL: time.Minute, ErrorWindow: 2 * time.Second, MaxEntries: 500},
		},
		{
			name:    "zero ttl",
			cfgData: `{"cache":{"ttl":"0s"}}`,
			wantErr: "cache.ttl: must be positive, got 0s",
		},
		{
			name:    "error window exceeds ttl",
			cfgData: `{"cache":{"ttl":"1s","errorWindow":"5s"}}`,
			wantErr: "cache.errorWindow: should not exceed ttl (1s), got 5s",
		},
		{
			name:    "zero max entries",
			cfgData: `{"cache":{"maxEntries":0}}`,
			wantErr: "cache.maxEntries: should be >= 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("")
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeJSON, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOpts, cfg.Opts())
		})
	}
}
