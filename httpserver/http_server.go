/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/service"
)

// APIVersion is a version of the gateway API, it becomes the "/v<N>" part of the URL.
type APIVersion = int

// APIRoute registers the handlers of one API version.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts configures the request metrics collected by HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts configures HTTPServer.
type Opts struct {
	// ServiceNameInURL makes the API available under /api/<ServiceNameInURL>/v<N>.
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	// RootMiddlewares run after the default ones (request id, logging, recovery and metrics).
	RootMiddlewares []func(http.Handler) http.Handler
	ErrorDomain     string
	HealthCheck     HealthCheck
	// MetricsHandler serves /metrics, promhttp.Handler() is used if nil.
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Handler replaces the whole router. No default middleware is applied to it.
	Handler http.Handler
	// Listener is used instead of listening on Config.Address.
	Listener net.Listener
}

// HTTPServer is an http.Server that runs as a service.Unit.
// By default, it serves a chi router with the API routes, /healthz and /metrics.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	port       atomic.Int32
	started    atomic.Bool
	done       chan struct{}
	reqMetrics *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates an HTTPServer.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam
	if opts.Handler != nil {
		return newServer(cfg, logger, opts.Handler, opts.Listener)
	}
	reqMetrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	srv := newServer(cfg, logger, newRouter(cfg, logger, &opts, reqMetrics), opts.Listener)
	srv.reqMetrics = reqMetrics
	return srv
}

func newServer(cfg *Config, logger log.FieldLogger, handler http.Handler, listener net.Listener) *HTTPServer {
	addr := cfg.Address
	if listener != nil {
		addr = listener.Addr().String()
	}
	scheme := "http://"
	if cfg.TLS.Enabled {
		scheme = "https://"
	}
	router, _ := handler.(chi.Router)
	return &HTTPServer{
		URL: scheme + addr,
		HTTPServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		TLS:             cfg.TLS,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        listener,
		done:            make(chan struct{}),
	}
}

// Start serves requests until Stop is called. It blocks, so it is called in a separate goroutine.
// An error of listening or serving is sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting HTTP server")

	if err := s.serve(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("HTTP server closed")
}

func (s *HTTPServer) serve() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port))
	}
	if s.TLS.Enabled {
		return s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	}
	return s.HTTPServer.Serve(s.listener)
}

// Stop stops the server. A graceful stop waits up to ShutdownTimeout for the requests in progress,
// otherwise all connections are closed at once.
func (s *HTTPServer) Stop(gracefully bool) error {
	if err := s.shutdown(gracefully); err != nil {
		s.Logger.Error("HTTP server stop failed", log.Error(err), log.Bool("graceful", gracefully))
		return err
	}
	if s.started.Load() {
		<-s.done
	}
	return nil
}

func (s *HTTPServer) shutdown(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing HTTP server")
		return s.HTTPServer.Close()
	}
	s.Logger.Info("shutting down HTTP server", log.Duration("timeout", s.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	return s.HTTPServer.Shutdown(ctx)
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.MustRegister()
	}
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.Unregister()
	}
}

// GetPort returns the TCP port the server listens on, 0 before it has started.
// It is useful when the address has port 0.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
