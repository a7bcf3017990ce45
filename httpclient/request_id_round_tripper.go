/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/bigschom/ss-portal/httpserver/middleware"
)

const headerRequestID = "X-Request-ID"

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider returns a request ID for the outgoing request.
	// By default, the ID of the incoming request (set by middleware.RequestID) is propagated,
	// and a new one is generated when the context has none.
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripper sets X-Request-ID header in all outgoing requests.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
	opts     RequestIDRoundTripperOpts
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support and options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	if opts.RequestIDProvider == nil {
		opts.RequestIDProvider = defaultRequestIDProvider
	}
	return &RequestIDRoundTripper{Delegate: delegate, opts: opts}
}

func defaultRequestIDProvider(ctx context.Context) string {
	if requestID := middleware.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}
	return middleware.NewRequestID()
}

// RoundTrip adds X-Request-ID header to the request.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(headerRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := rt.opts.RequestIDProvider(r.Context())
	if requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = CloneHTTPRequest(r) // Per RoundTripper contract.
	r.Header.Set(headerRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
