/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package requestqueue provides a concurrency-limited queue of keyed operations.
//
// At most MaxConcurrent operations run at once. An operation submitted under a key that is
// already running or waiting is not started again: the caller is merged onto the recorded
// operation and receives its outcome. Operations that cannot start immediately wait in
// arrival order and are started after a short drain delay once slots become free.
//
// Admitted operations always run to completion. A caller may stop waiting (its context
// is done), but the operation continues and its outcome is delivered to the other callers.
package requestqueue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bigschom/ss-portal/log"
)

// Default values.
const (
	DefaultMaxConcurrent = 3
	DefaultDrainDelay    = 100 * time.Millisecond
)

// NoDrainDelay disables the pause between a completion and the start of waiting operations.
const NoDrainDelay time.Duration = -1

// Operation is a unit of work executed by the queue.
// The context keeps the values of the submitting caller's context but is never cancelled.
type Operation[V any] func(ctx context.Context) (V, error)

// Opts represents options for the Queue.
type Opts struct {
	// MaxConcurrent is the maximum number of operations running at the same time.
	// Zero means DefaultMaxConcurrent.
	MaxConcurrent int

	// DrainDelay is a pause between a completion and the start of waiting operations.
	// Zero means DefaultDrainDelay, NoDrainDelay (or any negative value) disables it.
	DrainDelay time.Duration

	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
}

// Stats is a snapshot of the queue state.
type Stats struct {
	Running       int `json:"running"`
	Waiting       int `json:"waiting"`
	MaxConcurrent int `json:"max_concurrent"`
}

// call is a recorded operation: running or waiting for a free slot.
type call[V any] struct {
	key        string
	op         Operation[V]
	ctx        context.Context
	future     *Future[V]
	merged     int
	enqueuedAt time.Time
}

// Queue is a concurrency-limited queue of keyed operations. It is safe for concurrent use.
type Queue[V any] struct {
	maxConcurrent int
	drainDelay    time.Duration
	logger        log.FieldLogger
	metrics       MetricsCollector

	mu             sync.Mutex
	calls          map[string]*call[V]
	waiting        *list.List // of *call[V], in arrival order
	running        int
	drainScheduled bool
}

// New creates a new Queue with the given options.
func New[V any](opts Opts) (*Queue[V], error) {
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent operations must be >= 0, got %d", opts.MaxConcurrent)
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.DrainDelay == 0 {
		opts.DrainDelay = DefaultDrainDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	return &Queue[V]{
		maxConcurrent: opts.MaxConcurrent,
		drainDelay:    opts.DrainDelay,
		logger:        opts.Logger,
		metrics:       opts.MetricsCollector,
		calls:         make(map[string]*call[V]),
		waiting:       list.New(),
	}, nil
}

// Submit registers the operation under the key and returns the Future of its outcome.
//
// If an operation with the same key is running or waiting, op is not used and the Future of
// the recorded operation is returned. Otherwise op starts immediately when a slot is free and
// nothing is waiting, or is appended to the wait list.
func (q *Queue[V]) Submit(ctx context.Context, key string, op Operation[V]) *Future[V] {
	if key == "" {
		return newFailedFuture[V](ErrEmptyKey)
	}
	if op == nil {
		return newFailedFuture[V](ErrNilOperation)
	}

	q.mu.Lock()
	if c, ok := q.calls[key]; ok {
		c.merged++
		q.mu.Unlock()
		q.metrics.IncMerged()
		q.logger.Debug("request merged with recorded operation", log.String("key", key))
		return c.future
	}

	c := &call[V]{key: key, op: op, ctx: detachedContext{ctx}, future: newFuture[V](), enqueuedAt: time.Now()}
	q.calls[key] = c
	if q.running < q.maxConcurrent && q.waiting.Len() == 0 {
		q.startLocked(c)
		q.mu.Unlock()
		return c.future
	}
	q.waiting.PushBack(c)
	waiting := q.waiting.Len()
	q.mu.Unlock()

	q.metrics.SetWaiting(waiting)
	q.logger.Debug("operation queued", log.String("key", key), log.Int("waiting", waiting))
	return c.future
}

// Enqueue submits the operation and waits for its outcome.
// The value or error of the operation is returned unchanged. If ctx is done first,
// ctx.Err() is returned and the operation keeps running for the other callers.
func (q *Queue[V]) Enqueue(ctx context.Context, key string, op Operation[V]) (V, error) {
	return q.Submit(ctx, key, op).Wait(ctx)
}

// Stats returns the current number of running and waiting operations.
func (q *Queue[V]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Running: q.running, Waiting: q.waiting.Len(), MaxConcurrent: q.maxConcurrent}
}

// startLocked must be called with q.mu held.
func (q *Queue[V]) startLocked(c *call[V]) {
	q.running++
	q.metrics.SetRunning(q.running)
	q.metrics.ObserveWaitDuration(time.Since(c.enqueuedAt))
	go q.run(c)
}

func (q *Queue[V]) run(c *call[V]) {
	q.logger.Debug("operation started", log.String("key", c.key))
	startTime := time.Now()

	var value V
	err := ErrGoexit // kept if the operation calls runtime.Goexit
	defer func() {
		q.complete(c, value, err, time.Since(startTime))
	}()
	value, err = q.execute(c)
}

func (q *Queue[V]) complete(c *call[V], value V, err error, elapsed time.Duration) {
	q.mu.Lock()
	// The record is dropped before the outcome is published, so a caller that has seen
	// the outcome and submits the key again always gets a fresh operation.
	delete(q.calls, c.key)
	q.running--
	running, merged := q.running, c.merged
	q.mu.Unlock()

	q.metrics.SetRunning(running)
	q.metrics.IncOperations(err == nil)
	c.future.resolve(value, err)

	q.logger.Debug("operation completed",
		log.String("key", c.key), log.Int("merged", merged),
		log.Bool("failed", err != nil), log.Duration("elapsed", elapsed))

	q.scheduleDrain()
}

// execute converts a panic of the operation into *PanicError,
// so a misbehaving operation neither kills the process nor leaves its callers blocked.
func (q *Queue[V]) execute(c *call[V]) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := newPanicError(c.key, r)
			q.logger.Error("operation panicked", log.String("key", c.key), log.Any("panic", r),
				log.String("stack", string(panicErr.Stack)))
			err = panicErr
		}
	}()
	return c.op(c.ctx)
}

func (q *Queue[V]) scheduleDrain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting.Len() == 0 || q.drainScheduled {
		return
	}
	if q.drainDelay <= 0 {
		q.drainLocked()
		return
	}
	q.drainScheduled = true
	time.AfterFunc(q.drainDelay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.drainScheduled = false
		q.drainLocked()
	})
}

// drainLocked starts waiting operations in arrival order while slots are free.
// It must be called with q.mu held.
func (q *Queue[V]) drainLocked() {
	for q.running < q.maxConcurrent && q.waiting.Len() > 0 {
		c := q.waiting.Remove(q.waiting.Front()).(*call[V])
		q.startLocked(c)
	}
	q.metrics.SetWaiting(q.waiting.Len())
}
