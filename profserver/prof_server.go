/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package profserver provides an HTTP server with pprof endpoints that runs as a service.Unit.
package profserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ProfServer serves /debug/pprof/* and /debug/vars.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	listener net.Listener
	done     chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer. The listener is opened by Start unless one is passed here.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	return NewWithListener(cfg, logger, nil)
}

// NewWithListener is like New but serves on the given listener.
func NewWithListener(cfg *Config, logger log.FieldLogger, listener net.Listener) *ProfServer {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID(), middleware.Logging(logger))
	router.Mount("/debug", chimiddleware.Profiler())

	addr := cfg.Address
	if listener != nil {
		addr = listener.Addr().String()
	}
	return &ProfServer{
		URL:        "http://" + addr,
		HTTPServer: &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		Logger:     logger.With(log.String("address", addr)),
		listener:   listener,
		done:       make(chan struct{}),
	}
}

// Start serves requests until Stop is called. A listening error is sent to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	s.Logger.Info("starting profiling server")
	var err error
	if s.listener != nil {
		err = s.HTTPServer.Serve(s.listener)
	} else {
		err = s.HTTPServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.Logger.Info("profiling server closed")
		return
	}
	s.Logger.Error("profiling server failed", log.Error(err))
	fatalError <- err
}

// Stop closes the server. Profiles in progress are waited for only if gracefully is true.
func (s *ProfServer) Stop(gracefully bool) error {
	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("profiling server stop failed", log.Error(err))
		return err
	}
	<-s.done
	return nil
}
