/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/http"
	"net/url"
)

// ClientError is returned by DoRequestAndUnmarshalJSON when the remote service answers
// with an error status. It carries the message from the response body, so it is a
// structured remote failure (see resultcache.RemoteError), unlike transport errors.
type ClientError struct {
	Method     string
	URL        *url.URL
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error implements error interface.
func (e *ClientError) Error() string {
	str := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Code != "" {
		str += fmt.Sprintf(" (%s)", e.Code)
	}
	if e.Message != "" {
		str += ": " + e.Message
	}
	if e.Err != nil {
		str += ": " + e.Err.Error()
	}
	return str
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// RemoteErrorMessage returns the message reported by the remote service.
func (e *ClientError) RemoteErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// Retryable reports whether repeating the request may succeed.
func (e *ClientError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether the HTTP status code indicates a temporary failure.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}
