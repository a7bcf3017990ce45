/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// ErrRateLimitWaitTooLong means that a request would have to wait for a token longer than the wait timeout.
var ErrRateLimitWaitTooLong = errors.New("token is not available within the wait timeout")

// RateLimitingRoundTripperOpts configures RateLimitingRoundTripper. Zero values mean defaults.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper limits the rate of requests to the backend (token bucket, per second).
// A request that would wait for a token longer than WaitTimeout fails at once with RateLimitingWaitError,
// so callers do not hold a slot of the request queue just to fail later.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	RateLimit   int
	Burst       int
	WaitTimeout time.Duration

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a RateLimitingRoundTripper with default options.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a RateLimitingRoundTripper.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, fmt.Errorf("rate limit must be positive")
	case opts.Burst < 0:
		return nil, fmt.Errorf("burst must not be negative")
	}
	rt := &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
	}
	if rt.Burst == 0 {
		rt.Burst = DefaultRateLimitingBurst
	}
	if rt.WaitTimeout == 0 {
		rt.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	rt.limiter = rate.NewLimiter(rate.Limit(rateLimit), rt.Burst)
	return rt, nil
}

// RoundTrip implements http.RoundTripper.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.waitToken(r); err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, err
	}
	return rt.Delegate.RoundTrip(r)
}

func (rt *RateLimitingRoundTripper) waitToken(r *http.Request) error {
	reservation := rt.limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}
	if delay > rt.WaitTimeout {
		reservation.Cancel()
		return &RateLimitingWaitError{Inner: ErrRateLimitWaitTooLong, Delay: delay}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-r.Context().Done():
		reservation.Cancel()
		return r.Context().Err()
	}
}

// RateLimitingWaitError is returned by RateLimitingRoundTripper for a request that was not sent
// because of the client side rate limit.
type RateLimitingWaitError struct {
	Inner error
	// Delay is how long the request would have had to wait for a token.
	Delay time.Duration
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("client side rate limiting: %v (required wait %s)", e.Inner, e.Delay)
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
