/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bigschom/ss-portal/log"
)

const (
	// LoggingSecretQueryPlaceholder replaces values of secret query parameters in the logged URI.
	LoggingSecretQueryPlaceholder = "_HIDDEN_"

	// DefaultLoggingSlowRequestThreshold is the request duration starting from which "time_slots" are logged.
	DefaultLoggingSlowRequestThreshold = time.Second

	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// LoggingOpts configures the Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the additional "request started" message.
	RequestStart bool
	// RequestHeaders maps request header names to the log keys their values are logged under.
	RequestHeaders map[string]string
	// ExcludedEndpoints are URL paths whose successful requests are not logged.
	ExcludedEndpoints []string
	// SecretQueryParams are query parameters whose values are hidden in the logged URI.
	SecretQueryParams []string
	// AddRequestInfoToLogger makes the logger in the request context carry the request fields too.
	AddRequestInfoToLogger bool
	SlowRequestThreshold   time.Duration
}

// Logging is a middleware that logs every served request with its response status, size and duration.
// It puts a logger with the request ids into the request context together with LoggingParams
// that handlers (and the backend client working on their behalf) may extend.
// Responses with 5xx status are logged at the warn level.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	rl := &requestLogger{
		logger:         logger,
		requestStart:   opts.RequestStart,
		requestHeaders: opts.RequestHeaders,
		addToCtxLogger: opts.AddRequestInfoToLogger,
		slowThreshold:  opts.SlowRequestThreshold,
		excluded:       make(map[string]struct{}, len(opts.ExcludedEndpoints)),
		secretParams:   opts.SecretQueryParams,
	}
	if rl.slowThreshold <= 0 {
		rl.slowThreshold = DefaultLoggingSlowRequestThreshold
	}
	for _, endpoint := range opts.ExcludedEndpoints {
		rl.excluded[endpoint] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rl.serve(next, rw, r)
		})
	}
}

type requestLogger struct {
	logger         log.FieldLogger
	requestStart   bool
	requestHeaders map[string]string
	addToCtxLogger bool
	slowThreshold  time.Duration
	excluded       map[string]struct{}
	secretParams   []string
}

func (rl *requestLogger) serve(next http.Handler, rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	started := GetRequestStartTimeFromContext(ctx)
	if started.IsZero() {
		started = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, started)
	}

	ctxLogger := rl.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	reqLogger := ctxLogger.With(rl.requestFields(r)...)
	if rl.addToCtxLogger {
		ctxLogger = reqLogger
	}

	_, excluded := rl.excluded[r.URL.Path]
	if rl.requestStart && !excluded {
		reqLogger.Info("request started")
	}

	params := &LoggingParams{}
	ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), params)
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	next.ServeHTTP(wrw, r.WithContext(ctx))

	status := responseStatus(wrw)
	if excluded && status < http.StatusBadRequest {
		return
	}
	elapsed := time.Since(started)
	fields := append([]log.Field{
		log.Int64("duration_ms", elapsed.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	}, params.logFields(elapsed >= rl.slowThreshold)...)
	msg := fmt.Sprintf("response completed in %.3fs", elapsed.Seconds())
	if status >= http.StatusInternalServerError {
		reqLogger.Warn(msg, fields...)
		return
	}
	reqLogger.Info(msg, fields...)
}

func (rl *requestLogger) requestFields(r *http.Request) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", rl.uri(r)),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields = append(fields, log.String("remote_addr_ip", ip))
	}
	if origin := originAddr(r.Header); origin != "" {
		fields = append(fields, log.String("origin_addr", origin))
	}
	for header, key := range rl.requestHeaders {
		fields = append(fields, log.String(key, r.Header.Get(header)))
	}
	return fields
}

func (rl *requestLogger) uri(r *http.Request) string {
	if len(rl.secretParams) == 0 || r.URL.RawQuery == "" {
		return r.RequestURI
	}
	query := r.URL.Query()
	hidden := false
	for _, name := range rl.secretParams {
		for i, v := range query[name] {
			if v != "" {
				query[name][i] = LoggingSecretQueryPlaceholder
				hidden = true
			}
		}
	}
	if !hidden {
		return r.RequestURI
	}
	return (&url.URL{Path: r.URL.Path, RawQuery: query.Encode()}).String()
}

// originAddr returns the first address from X-Forwarded-For or X-Real-IP.
func originAddr(h http.Header) string {
	if forwarded := h.Get(headerForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(h.Get(headerRealIP))
}
