/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/restapi"
)

// RecoveryDefaultStackSize is the default number of stack bytes logged with a panic.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts configures the Recovery middleware. Zero StackSize disables stack logging.
type RecoveryOpts struct {
	StackSize int
}

// Recovery is a middleware that turns a panic in a handler into a 500 response with an internal error
// of the given domain. The panic value and a part of the stack are logged.
// If the handler has already written the response headers, the connection just gets the partial response.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					handlePanic(p, wrw, r, errDomain, opts.StackSize)
				}
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}

func handlePanic(p interface{}, wrw WrapResponseWriter, r *http.Request, errDomain string, stackSize int) {
	logger := GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	// http.Server handles ErrAbortHandler itself.
	if p == http.ErrAbortHandler { //nolint:errorlint
		logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		panic(p)
	}

	var fields []log.Field
	if stackSize > 0 {
		buf := make([]byte, stackSize)
		fields = append(fields, log.Bytes("stack", buf[:runtime.Stack(buf, false)]))
	}
	if wrw.Status() != 0 {
		fields = append(fields, log.Int("written_status", wrw.Status()))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)

	if wrw.Status() == 0 {
		restapi.RespondError(wrw, http.StatusInternalServerError, restapi.NewInternalError(errDomain), logger)
	}
}
