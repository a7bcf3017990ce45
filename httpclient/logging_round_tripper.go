/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
)

// LoggerMode represents a mode of logging.
type LoggerMode string

// Logging modes.
const (
	// LoggerModeNone disables logging of outgoing requests.
	LoggerModeNone LoggerMode = "none"
	// LoggerModeAll logs every request (successful ones at debug level).
	LoggerModeAll LoggerMode = "all"
	// LoggerModeFailed logs only failed (transport error or HTTP status >= 400) and slow requests.
	LoggerModeFailed LoggerMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggerMode) IsValid() bool {
	switch lm {
	case LoggerModeNone, LoggerModeAll, LoggerModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Logger is used when the provider returns nil (e.g. for requests made outside of an incoming HTTP request).
	Logger log.FieldLogger

	// RequestType is a default type of request, see NewContextWithRequestType.
	RequestType string

	// Mode of logging: none, all, failed. LoggerModeFailed is used by default.
	Mode LoggerMode

	// SlowRequestThreshold is a threshold after which a request is logged at warn level in any mode except none.
	// Zero disables slow request detection.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper implements http.RoundTripper for logging outgoing requests.
// Besides logging, it adds the request duration as a time slot into middleware.LoggingParams,
// so it's shown in the log line of the incoming request served by httpserver.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates an HTTP transport that log requests.
func NewLoggingRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that log requests with options.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggerModeFailed
	}
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	var logger log.FieldLogger
	if rt.Opts.LoggerProvider != nil {
		logger = rt.Opts.LoggerProvider(ctx)
	} else {
		logger = middleware.GetLoggerFromContext(ctx)
	}
	if logger == nil {
		return rt.Opts.Logger
	}
	return logger
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggerModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	requestType := GetRequestTypeFromContext(ctx)
	if requestType == "" {
		requestType = rt.Opts.RequestType
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", requestType), elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}

	fields := []log.Field{
		log.String("request_type", requestType),
		log.String("method", r.Method),
		log.String("url", r.URL.Redacted()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		logger.Error(fmt.Sprintf("client http request %s %s failed", r.Method, r.URL.Redacted()),
			append(fields, log.Error(err))...)
		return resp, err
	}

	fields = append(fields, log.Int("status", resp.StatusCode))
	msg := fmt.Sprintf("client http request %s %s completed with status %d in %.3fs",
		r.Method, r.URL.Redacted(), resp.StatusCode, elapsed.Seconds())
	switch {
	case rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold:
		logger.Warn("slow "+msg, fields...)
	case resp.StatusCode >= http.StatusBadRequest:
		logger.Info(msg, fields...)
	case rt.Opts.Mode == LoggerModeAll:
		logger.Debug(msg, fields...)
	}
	return resp, err
}
