/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/log/logtest"
)

func startWorkerUnit(unit *WorkerUnit) (fatalErr chan error, startReturned chan struct{}) {
	fatalErr = make(chan error, 1)
	startReturned = make(chan struct{})
	go func() {
		defer close(startReturned)
		unit.Start(fatalErr)
	}()
	return fatalErr, startReturned
}

func TestWorkerUnit_Stop(t *testing.T) {
	t.Run("non-graceful stop does not wait", func(t *testing.T) {
		var runs atomic.Int32
		release := make(chan struct{})
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if ctx.Err() != nil {
				<-release
			}
			runs.Inc()
			return nil
		}), 10*time.Millisecond, logtest.NewLogger())

		unit := NewWorkerUnit(periodicWorker)
		fatalErr, startReturned := startWorkerUnit(unit)
		require.NoError(t, waitTrue(func() bool { return runs.Load() >= 3 }, 3*time.Second))

		require.NoError(t, unit.Stop(false))
		close(release)
		<-startReturned
		testutilNoError(t, fatalErr)
	})

	t.Run("graceful stop waits for the worker", func(t *testing.T) {
		var finished atomic.Bool
		running := make(chan struct{})
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			time.Sleep(100 * time.Millisecond)
			finished.Store(true)
			return nil
		}))
		fatalErr, _ := startWorkerUnit(unit)
		<-running

		require.NoError(t, unit.Stop(true))
		require.True(t, finished.Load())
		testutilNoError(t, fatalErr)
	})

	t.Run("graceful stop timeout", func(t *testing.T) {
		running := make(chan struct{})
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(context.Context) error {
			close(running)
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: 50 * time.Millisecond})
		startWorkerUnit(unit)
		<-running

		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("stop without start", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(context.Context) error { return nil }))
		require.NoError(t, unit.Stop(true))
		require.NoError(t, unit.Stop(false))
	})
}

func TestWorkerUnit_FatalError(t *testing.T) {
	errStats := errors.New("cache stats reporter failed")
	unit := NewWorkerUnit(WorkerFunc(func(context.Context) error { return errStats }))
	fatalErr := make(chan error, 1)
	unit.Start(fatalErr)
	require.ErrorIs(t, <-fatalErr, errStats)
	require.NoError(t, unit.Stop(true))
}

func TestWorkerUnit_Metrics(t *testing.T) {
	var runningCounter int32
	registerer := newMockUnit("stats", &runningCounter, false)
	unit := NewWorkerUnitWithOpts(WorkerFunc(func(context.Context) error { return nil }),
		WorkerUnitOpts{MetricsRegisterer: registerer})
	unit.MustRegisterMetrics()
	unit.UnregisterMetrics()
	require.Equal(t, 1, registerer.mustRegisterMetricsCalled)
	require.Equal(t, 1, registerer.unregisterMetricsCalled)

	// No registerer is fine too.
	NewWorkerUnit(WorkerFunc(func(context.Context) error { return nil })).MustRegisterMetrics()
}

func testutilNoError(t *testing.T, fatalErr <-chan error) {
	t.Helper()
	select {
	case err := <-fatalErr:
		require.NoError(t, err)
	default:
	}
}
