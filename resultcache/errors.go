/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package resultcache

import (
	"errors"
	"fmt"
	"time"
)

// RemoteError is implemented by errors that carry a structured response of a remote service
// (an HTTP error status with a body, as opposed to a broken connection).
// Only such errors are cached, for the short error window.
type RemoteError interface {
	error
	// RemoteErrorMessage returns the message reported by the remote service.
	RemoteErrorMessage() string
}

// AsRemoteError finds the first RemoteError in the chain of err.
func AsRemoteError(err error) (RemoteError, bool) {
	var remoteErr RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}

// CachedError is returned by Get while a cached remote error is still fresh.
// It unwraps to the original error, so errors.As/errors.Is work the same as for a live failure.
type CachedError struct {
	Key       string
	Message   string
	StoredAt  time.Time
	ExpiresAt time.Time
	Err       error
}

// Error implements error interface.
func (e *CachedError) Error() string {
	return fmt.Sprintf("cached failure for %q: %s", e.Key, e.Message)
}

// Unwrap returns the original error.
func (e *CachedError) Unwrap() error {
	return e.Err
}

// RemoteErrorMessage implements RemoteError.
func (e *CachedError) RemoteErrorMessage() string {
	return e.Message
}
