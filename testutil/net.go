/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"net"
	"time"

	"github.com/stretchr/testify/require"
)

// GetLocalAddrWithFreeTCPPort returns a 127.0.0.1:<port> address with a port that was free a moment ago.
func GetLocalAddrWithFreeTCPPort() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().String()
}

// WaitListeningServer polls the address until it accepts TCP connections or the timeout expires.
func WaitListeningServer(addr string, timeout time.Duration) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-deadline:
			return fmt.Errorf("server on %s is not listening after %s: %w", addr, timeout, err)
		case <-ticker.C:
		}
	}
}

// RequireNoErrorInChannel fails the test if the channel of fatal errors (e.g. the one passed to
// service.Unit.Start) already holds an error. It does not wait.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}
