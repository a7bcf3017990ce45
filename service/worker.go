/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bigschom/ss-portal/log"
)

// ErrPeriodicWorkerStop may be returned by the worker to stop the PeriodicWorker loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to log messages as the "worker" field.
	Name string

	// InitialDelay is a delay before the first run.
	InitialDelay time.Duration

	// IntervalDelayFunc overrides the delay before the next run.
	IntervalDelayFunc func(worker Worker, err error) time.Duration

	// ErrorBackOff gives delays after failed runs, it is reset after every successful run.
	// The loop stops with the last error when the backoff gives up (backoff.Stop).
	// IntervalDelayFunc takes precedence.
	ErrorBackOff backoff.BackOff
}

// PeriodicWorker runs the underlying worker again and again with a delay between runs.
type PeriodicWorker struct {
	worker        Worker
	logger        log.FieldLogger
	intervalDelay time.Duration
	opts          PeriodicWorkerOpts
}

// NewPeriodicWorker creates a new PeriodicWorker with a constant delay.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is a more configurable version of NewPeriodicWorker.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{worker: worker, logger: logger, intervalDelay: intervalDelay, opts: opts}
}

// Run runs the loop until ctx is done or the worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic in periodic worker: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		if resErr != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(resErr))
			return
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval", pw.intervalDelay))

	if pw.opts.ErrorBackOff != nil {
		pw.opts.ErrorBackOff.Reset()
	}
	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := pw.worker.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Warn("periodic worker run failed", log.Error(err))
		}

		nextDelay, giveUpErr := pw.nextDelay(err)
		if giveUpErr != nil {
			return giveUpErr
		}
		timer.Reset(nextDelay)
	}
}

func (pw *PeriodicWorker) nextDelay(runErr error) (time.Duration, error) {
	if pw.opts.IntervalDelayFunc != nil {
		return pw.opts.IntervalDelayFunc(pw.worker, runErr), nil
	}
	if pw.opts.ErrorBackOff == nil {
		return pw.intervalDelay, nil
	}
	if runErr == nil {
		pw.opts.ErrorBackOff.Reset()
		return pw.intervalDelay, nil
	}
	delay := pw.opts.ErrorBackOff.NextBackOff()
	if delay == backoff.Stop {
		return 0, fmt.Errorf("give up after repeated failures: %w", runErr)
	}
	return delay, nil
}
