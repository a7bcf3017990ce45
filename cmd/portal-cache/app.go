/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"

	"github.com/bigschom/ss-portal/httpclient"
	"github.com/bigschom/ss-portal/httpserver"
	"github.com/bigschom/ss-portal/httpserver/middleware/throttle"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/portalapi"
	"github.com/bigschom/ss-portal/profserver"
	"github.com/bigschom/ss-portal/requestqueue"
	"github.com/bigschom/ss-portal/restapi"
	"github.com/bigschom/ss-portal/resultcache"
	"github.com/bigschom/ss-portal/service"
)

const (
	serviceNameInURL = "portal"

	statsWorkerName          = "cache-stats"
	statsGracefulStopTimeout = 5 * time.Second
	statsMaxErrorBackOff     = 5 * time.Minute

	// Health check fails when so many reads wait for a free slot.
	healthMaxWaitingFactor = 10
)

// appMetrics registers the collectors of all components that are not HTTP servers.
type appMetrics struct {
	namespace string
	queue     *requestqueue.PrometheusMetrics
	cache     *resultcache.PrometheusMetrics
	backend   *httpclient.PrometheusMetricsCollector
	throttle  *throttle.MetricsCollector
}

var _ service.MetricsRegisterer = (*appMetrics)(nil)

func newAppMetrics(namespace string) *appMetrics {
	return &appMetrics{
		namespace: namespace,
		queue:     requestqueue.NewPrometheusMetricsWithOpts(requestqueue.PrometheusMetricsOpts{Namespace: namespace}),
		cache:     resultcache.NewPrometheusMetricsWithOpts(resultcache.PrometheusMetricsOpts{Namespace: namespace}),
		backend:   httpclient.NewPrometheusMetricsCollector(namespace),
		throttle:  throttle.NewMetricsCollector(namespace),
	}
}

func (m *appMetrics) MustRegisterMetrics() {
	m.queue.MustRegister()
	m.cache.MustRegister()
	m.backend.MustRegister()
	m.throttle.MustRegister()
	restapi.MustInitAndRegisterMetrics(m.namespace)
}

func (m *appMetrics) UnregisterMetrics() {
	m.queue.Unregister()
	m.cache.Unregister()
	m.backend.Unregister()
	m.throttle.Unregister()
	restapi.UnregisterMetrics()
}

type app struct {
	cfg     *AppConfig
	logger  log.FieldLogger
	metrics *appMetrics
	cache   *resultcache.Cache[[]byte]
	client  *portalapi.Client
	handler *handlers

	// throttle rate-limits the API routes configured in the "throttle" section.
	throttle func(http.Handler) http.Handler
}

// appOpts allows tests to replace the network parts of the gateway.
type appOpts struct {
	BackendTransport http.RoundTripper
}

func newApp(cfg *AppConfig, logger log.FieldLogger, opts appOpts) (*app, error) {
	metrics := newAppMetrics(cfg.Gateway.MetricsNamespace)

	queueOpts := cfg.Queue.Opts()
	queueOpts.Logger = logger.With(log.String("component", "queue"))
	queueOpts.MetricsCollector = metrics.queue
	queue, err := requestqueue.New[[]byte](queueOpts)
	if err != nil {
		return nil, fmt.Errorf("create request queue: %w", err)
	}

	cacheOpts := cfg.Cache.Opts()
	cacheOpts.Logger = logger.With(log.String("component", "cache"))
	cacheOpts.MetricsCollector = metrics.cache
	cache, err := resultcache.New[[]byte](queue, cacheOpts)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	client, err := portalapi.NewClient(cfg.Backend, cache, portalapi.ClientOpts{
		Logger:           logger.With(log.String("component", "backend")),
		MetricsCollector: metrics.backend,
		Transport:        opts.BackendTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("create portal client: %w", err)
	}

	throttleMiddleware, err := throttle.Middleware(cfg.Throttle, errorDomain,
		throttle.MiddlewareOpts{MetricsCollector: metrics.throttle})
	if err != nil {
		return nil, fmt.Errorf("create throttling middleware: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		cache:   cache,
		client:  client,
		handler: &handlers{
			client:      client,
			cache:       cache,
			logger:      logger,
			maxBodySize: uint64(cfg.Server.Limits.MaxBodySize),
		},
		throttle: throttleMiddleware,
	}, nil
}

// routes returns the API routes of the gateway, versioned as the server mounts them.
func (a *app) routes() map[httpserver.APIVersion]httpserver.APIRoute {
	return map[httpserver.APIVersion]httpserver.APIRoute{
		1: func(r chi.Router) { a.handler.routes(r) },
	}
}

func (a *app) healthCheck(_ context.Context) (httpserver.HealthCheckResult, error) {
	stats := a.cache.Stats()
	queueStatus := httpserver.HealthCheckStatusOK
	if stats.Queue.Waiting > stats.Queue.MaxConcurrent*healthMaxWaitingFactor {
		queueStatus = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{
		"cache": httpserver.HealthCheckStatusOK,
		"queue": queueStatus,
	}, nil
}

func (a *app) newServer() *httpserver.HTTPServer {
	return httpserver.New(a.cfg.Server, a.logger, httpserver.Opts{
		ServiceNameInURL:   serviceNameInURL,
		RootMiddlewares:    []func(http.Handler) http.Handler{a.throttle},
		APIRoutes:          a.routes(),
		ErrorDomain:        errorDomain,
		HealthCheck:        a.healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: a.cfg.Gateway.MetricsNamespace},
	})
}

// unit builds the service unit that serves HTTP, reports cache stats and optionally serves pprof.
func (a *app) unit() service.Unit {
	units := []service.Unit{a.newServer()}

	errBackOff := backoff.NewExponentialBackOff()
	errBackOff.InitialInterval = a.cfg.Gateway.StatsInterval
	errBackOff.MaxInterval = statsMaxErrorBackOff
	errBackOff.MaxElapsedTime = 0
	statsWorker := service.NewPeriodicWorkerWithOpts(
		newStatsReporter(a.cache, a.logger), a.cfg.Gateway.StatsInterval, a.logger,
		service.PeriodicWorkerOpts{
			Name:         statsWorkerName,
			InitialDelay: a.cfg.Gateway.StatsInterval,
			ErrorBackOff: errBackOff,
		})
	statsUnit := service.NewWorkerUnitWithOpts(statsWorker, service.WorkerUnitOpts{
		MetricsRegisterer:   a.metrics,
		GracefulStopTimeout: statsGracefulStopTimeout,
	})

	units = append(units, statsUnit)

	if a.cfg.ProfServer.Enabled {
		units = append(units, profserver.New(a.cfg.ProfServer, a.logger))
	}
	return service.NewCompositeUnit(units...)
}

// warmup prefetches the configured service requests. A failed warm-up is not fatal:
// the entries are fetched again on the first read.
func (a *app) warmup(ctx context.Context) {
	ids := a.cfg.Gateway.WarmupServiceRequests
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Gateway.WarmupTimeout)
	defer cancel()
	if err := a.client.Warmup(ctx, ids); err != nil {
		a.logger.Warn("cache warm-up failed", log.Error(err), log.Int("count", len(ids)))
	}
}
