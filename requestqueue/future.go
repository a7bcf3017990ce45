/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue

import "context"

// Future is the pending outcome of a queued operation.
// All callers merged onto the same operation share one Future and observe the identical
// value or error.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func newFailedFuture[V any](err error) *Future[V] {
	f := newFuture[V]()
	f.resolve(*new(V), err)
	return f
}

// resolve must be called exactly once.
func (f *Future[V]) resolve(value V, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed when the outcome is available.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the outcome is available or ctx is done.
// In the latter case ctx.Err() is returned, the operation itself keeps running.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the operation is pending.
func (f *Future[V]) Result() (value V, err error, ok bool) { //nolint:revive
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero V
		return zero, nil, false
	}
}
