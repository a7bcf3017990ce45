/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// MaxRequestIDLength limits the length of the X-Request-ID value accepted from a client.
const MaxRequestIDLength = 128

// RequestIDOpts configures the RequestID middleware. Nil generators fall back to NewRequestID.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

// NewRequestID returns a new globally unique id (xid).
func NewRequestID() string {
	return xid.New().String()
}

// RequestID is a middleware that takes the request ID from the X-Request-ID header or generates a new one.
// It also generates an internal ID for every request. Both IDs are put into the request context
// and echoed back in the X-Request-ID and X-Int-Request-ID response headers.
// The external ID travels further to the portal backend with every request made on behalf of this one,
// so values that are too long or contain non-printable characters are replaced with a generated one.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is a more configurable version of RequestID.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	genID, genInternalID := opts.GenerateID, opts.GenerateInternalID
	if genID == nil {
		genID = NewRequestID
	}
	if genInternalID == nil {
		genInternalID = NewRequestID
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(headerRequestID)
			if !isValidRequestID(reqID) {
				reqID = genID()
			}
			intReqID := genInternalID()

			rw.Header().Set(headerRequestID, reqID)
			rw.Header().Set(headerInternalRequestID, intReqID)
			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), reqID), intReqID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func isValidRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
