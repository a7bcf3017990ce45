/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/restapi"
)

// StatusClientClosedRequest is the non-standard status (introduced by nginx) for a request
// that the client canceled before the response was ready.
const StatusClientClosedRequest = 499

// HealthCheckStatus is the status of a single component.
type HealthCheckStatus int

// Component statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names (e.g. "cache", "queue") to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck checks the components of the gateway.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// NewHealthCheckHandler returns the /healthz handler.
// It responds 200 if all components are healthy, 503 if any is not and 500 if the check itself failed.
// A nil fn reports no components.
func NewHealthCheckHandler(fn HealthCheck) http.Handler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := middleware.GetLoggerFromContext(ctx)

		result, err := fn(ctx)
		if errors.Is(ctx.Err(), context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		if err != nil {
			if logger != nil {
				logger.Error("health check failed", log.Error(err))
			}
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		data := healthCheckResponseData{Components: make(map[string]bool, len(result))}
		for name, componentStatus := range result {
			healthy := componentStatus == HealthCheckStatusOK
			data.Components[name] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		restapi.RespondCodeAndJSON(rw, status, data, logger)
	})
}
