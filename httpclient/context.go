/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType names the outgoing request (e.g. "list_users").
// The name becomes the "type" label of the client metrics and the "request_type" log field.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext returns the name set by NewContextWithRequestType or "".
func GetRequestTypeFromContext(ctx context.Context) string {
	requestType, _ := ctx.Value(ctxKeyRequestType).(string)
	return requestType
}

// NewContextWithIdempotentHint marks the request as safe to repeat regardless of its method,
// e.g. a PATCH that sets an absolute status.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext reports whether the request was marked as idempotent.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	isIdempotent, _ := ctx.Value(ctxKeyIdempotentHint).(bool)
	return isIdempotent
}
