/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/restapi"
)

// ErrMessageMethodNotAllowed is the message of the error returned for a known route requested with another method.
const ErrMessageMethodNotAllowed = "Method not allowed."

const (
	endpointMetrics = "/metrics"
	endpointHealthz = "/healthz"
)

func newRouter(
	cfg *Config, logger log.FieldLogger, opts *Opts, reqMetrics *middleware.HTTPRequestMetricsCollector,
) chi.Router {
	getRoutePattern := opts.HTTPRequestMetrics.GetRoutePattern
	if getRoutePattern == nil {
		getRoutePattern = GetChiRoutePattern
	}

	router := chi.NewRouter()
	router.Use(
		markRequestStart,
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, loggingOpts(&cfg.Log)),
		middleware.Recovery(opts.ErrorDomain),
		middleware.HTTPRequestMetricsWithOpts(reqMetrics, getRoutePattern, middleware.HTTPRequestMetricsOpts{
			ExcludedEndpoints: []string{endpointMetrics, endpointHealthz},
		}),
	)
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, endpointMetrics, metricsHandler)
	router.Method(http.MethodGet, endpointHealthz, NewHealthCheckHandler(opts.HealthCheck))

	router.Route("/api/"+opts.ServiceNameInURL, func(r chi.Router) {
		if cfg.Limits.MaxRequests > 0 {
			r.Use(chimw.ThrottleWithOpts(chimw.ThrottleOpts{
				Limit:          cfg.Limits.MaxRequests,
				BacklogLimit:   cfg.Limits.MaxRequestsBacklog,
				BacklogTimeout: time.Duration(cfg.Limits.BacklogTimeout),
			}))
		}
		for ver, route := range opts.APIRoutes {
			r.Route(fmt.Sprintf("/v%d", ver), route)
		}
	})

	errDomain := opts.ErrorDomain
	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(errDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), loggerFor(r, logger))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondError(rw, http.StatusMethodNotAllowed,
			restapi.NewErrorForStatus(errDomain, http.StatusMethodNotAllowed, ErrMessageMethodNotAllowed), loggerFor(r, logger))
	})
	return router
}

func markRequestStart(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}

// loggingOpts converts the config, a header is logged under the "req_header_<snake_case_name>" key.
func loggingOpts(cfg *LogConfig) middleware.LoggingOpts {
	headers := make(map[string]string, len(cfg.RequestHeaders))
	for _, name := range cfg.RequestHeaders {
		headers[name] = "req_header_" + strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	}
	return middleware.LoggingOpts{
		RequestStart:           cfg.RequestStart,
		RequestHeaders:         headers,
		ExcludedEndpoints:      cfg.ExcludedEndpoints,
		SecretQueryParams:      cfg.SecretQueryParams,
		AddRequestInfoToLogger: cfg.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(cfg.SlowRequestThreshold),
	}
}

func loggerFor(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}

// GetChiRoutePattern returns the chi route pattern of the request, e.g. "/api/portal/v1/users/{id}".
// For a request that has not been routed yet, the pattern is found by matching the routes.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	matchCtx := chi.NewRouteContext()
	if !rctx.Routes.Match(matchCtx, r.Method, path) {
		return ""
	}
	return matchCtx.RoutePattern()
}
