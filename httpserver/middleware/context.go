/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/bigschom/ss-portal/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
)

func withValue[T any](ctx context.Context, key ctxKey, value T) context.Context {
	return context.WithValue(ctx, key, value)
}

// valueFrom returns the zero value of T if the key is missing.
func valueFrom[T any](ctx context.Context, key ctxKey) T {
	value, _ := ctx.Value(key).(T)
	return value
}

// NewContextWithRequestID returns a context that carries the external request ID.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the external request ID.
// The portal client forwards it to the backend in the X-Request-ID header.
func GetRequestIDFromContext(ctx context.Context) string {
	return valueFrom[string](ctx, ctxKeyRequestID)
}

// NewContextWithInternalRequestID returns a context that carries the internal request ID.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return withValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request ID.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return valueFrom[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger returns a context that carries the request logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return withValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns the request logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return valueFrom[log.FieldLogger](ctx, ctxKeyLogger)
}

// NewContextWithLoggingParams returns a context that carries the logging params of the request.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return withValue(ctx, ctxKeyLoggingParams, loggingParams)
}

// GetLoggingParamsFromContext returns the logging params of the request or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return valueFrom[*LoggingParams](ctx, ctxKeyLoggingParams)
}

// NewContextWithRequestStartTime returns a context that carries the time the request was received.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return withValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns the time the request was received or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return valueFrom[time.Time](ctx, ctxKeyRequestStartTime)
}
