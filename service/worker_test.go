/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("stops when context is done", func(t *testing.T) {
		var runs atomic.Int32
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), 10*time.Millisecond, logtest.NewLogger())

		ctx, ctxCancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- periodicWorker.Run(ctx) }()

		require.NoError(t, waitTrue(func() bool { return runs.Load() >= 3 }, 3*time.Second))
		ctxCancel()
		require.NoError(t, <-runErr)
	})

	t.Run("stops on ErrPeriodicWorkerStop", func(t *testing.T) {
		c := 0
		logRecorder := logtest.NewRecorder()
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c++
			if c == 2 {
				return fmt.Errorf("nothing to report: %w", ErrPeriodicWorkerStop)
			}
			return nil
		}), time.Millisecond, logRecorder)

		require.NoError(t, periodicWorker.Run(context.Background()))
		require.Equal(t, 2, c)
		_, found := logRecorder.FindEntry("periodic worker stopped")
		require.True(t, found)
	})

	t.Run("initial delay is respected", func(t *testing.T) {
		var firstRunAt time.Time
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			firstRunAt = time.Now()
			return ErrPeriodicWorkerStop
		}), time.Hour, nil, PeriodicWorkerOpts{InitialDelay: 100 * time.Millisecond})

		startedAt := time.Now()
		require.NoError(t, periodicWorker.Run(context.Background()))
		require.GreaterOrEqual(t, firstRunAt.Sub(startedAt), 100*time.Millisecond)
	})

	t.Run("interval delay func sees the run error", func(t *testing.T) {
		var delayErrs []error
		errFirst := errors.New("first run failed")
		c := 0
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c++
			switch c {
			case 1:
				return errFirst
			case 3:
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Hour, nil, PeriodicWorkerOpts{IntervalDelayFunc: func(_ Worker, err error) time.Duration {
			delayErrs = append(delayErrs, err)
			return time.Millisecond
		}})

		require.NoError(t, periodicWorker.Run(context.Background()))
		require.Equal(t, []error{errFirst, nil}, delayErrs)
	})

	t.Run("errors are retried with backoff until it gives up", func(t *testing.T) {
		c := 0
		errBackend := fmt.Errorf("backend is unavailable")
		logRecorder := logtest.NewRecorder()
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c++
			return errBackend
		}), time.Hour, logRecorder, PeriodicWorkerOpts{
			Name:         "cache-stats",
			ErrorBackOff: backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond*10), 2),
		})

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Minute)
		defer ctxCancel()
		err := periodicWorker.Run(ctx)
		require.ErrorIs(t, err, errBackend)
		require.Equal(t, 3, c)

		entry, found := logRecorder.FindEntry("periodic worker stopped with error")
		require.True(t, found)
		field, found := entry.FindField("worker")
		require.True(t, found)
		require.Equal(t, "cache-stats", string(field.Bytes))
	})

	t.Run("successful run resets backoff", func(t *testing.T) {
		c := 0
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c++
			switch {
			case c == 6:
				return ErrPeriodicWorkerStop
			case c%2 == 1:
				return fmt.Errorf("temporary failure #%d", c)
			}
			return nil
		}), time.Millisecond*10, nil, PeriodicWorkerOpts{
			ErrorBackOff: backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond*10), 1),
		})

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Minute)
		defer ctxCancel()
		require.NoError(t, periodicWorker.Run(ctx))
		require.Equal(t, 6, c)
	})
}
