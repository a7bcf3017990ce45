/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package service runs the units of the portal cache (HTTP server, background workers)
// and stops them on OS signals or when the context is done.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigschom/ss-portal/log"
)

// DefaultShutdownSignals are the signals New subscribes to.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Opts represents an options for Service.
type Opts struct {
	// ShutdownSignals stop the service gracefully. No signals are handled if empty.
	ShutdownSignals []os.Signal
}

// Service owns the lifecycle of a single (usually composite) unit.
type Service struct {
	Unit   Unit
	Logger log.FieldLogger
	Opts   Opts

	// Signals receives the shutdown signals. Sending into it directly is the same as a delivered signal.
	Signals chan os.Signal
}

// New creates a Service that stops on SIGINT and SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: DefaultShutdownSignals})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Service{Unit: unit, Logger: logger, Opts: opts, Signals: make(chan os.Signal, 1)}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext registers the unit metrics, runs the unit and blocks.
// A fatal error of the unit is returned as is (wrapped); a shutdown signal or
// the end of ctx leads to a graceful stop of the unit.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	if len(s.Opts.ShutdownSignals) > 0 {
		signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
		defer signal.Stop(s.Signals)
	}

	unitFatalError := make(chan error, 1)
	go s.Unit.Start(unitFatalError)

	if err := s.wait(ctx, unitFatalError); err != nil {
		s.Logger.Error("service unit failed", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service stopped")
	return nil
}

// wait returns a non-nil error only if the unit failed.
func (s *Service) wait(ctx context.Context, unitFatalError <-chan error) error {
	select {
	case err := <-unitFatalError:
		return err
	case sig := <-s.Signals:
		s.Logger.Info("shutdown signal received, stopping service", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.Logger.Info("context is done, stopping service")
	}
	return nil
}
