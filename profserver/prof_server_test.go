/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package profserver

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/log/logtest"
	"github.com/bigschom/ss-portal/testutil"
)

func TestProfServer(t *testing.T) {
	t.Run("serves pprof index", func(t *testing.T) {
		addr := testutil.GetLocalAddrWithFreeTCPPort()
		logRecorder := logtest.NewRecorder()
		profServer := New(&Config{Enabled: true, Address: addr}, logRecorder)
		fatalErr := make(chan error, 1)
		go profServer.Start(fatalErr)
		require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))

		resp, err := http.Get(profServer.URL + "/debug/pprof/")
		require.NoError(t, err)
		respBody, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, respBody)

		require.NoError(t, profServer.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
		_, found := logRecorder.FindEntry("profiling server closed")
		require.True(t, found)
	})

	t.Run("busy address is fatal", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = listener.Close() }()

		profServer := New(&Config{Enabled: true, Address: listener.Addr().String()}, logtest.NewRecorder())
		fatalErr := make(chan error, 1)
		profServer.Start(fatalErr)
		require.Error(t, <-fatalErr)
	})

	t.Run("custom listener", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		profServer := NewWithListener(&Config{Enabled: true}, nil, listener)
		require.Equal(t, "http://"+listener.Addr().String(), profServer.URL)
		fatalErr := make(chan error, 1)
		go profServer.Start(fatalErr)

		resp, err := http.Get(profServer.URL + "/debug/vars")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, profServer.Stop(false))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	})
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig("")
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
		require.False(t, cfg.Enabled)
		require.Equal(t, DefaultAddress, cfg.Address)
	})

	t.Run("json", func(t *testing.T) {
		cfg := NewConfig("debug.profServer")
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"debug": {"profServer": {"enabled": true, "address": "0.0.0.0:6061"}}}`),
			config.DataTypeJSON, cfg))
		require.True(t, cfg.Enabled)
		require.Equal(t, "0.0.0.0:6061", cfg.Address)
	})

	t.Run("enabled without address", func(t *testing.T) {
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("profServer:\n  enabled: true\n  address: \"\""), config.DataTypeYAML, NewConfig(""))
		require.EqualError(t, err, "profServer.address: must not be empty")
	})
}
