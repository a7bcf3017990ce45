/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue

import (
	"context"
	"time"
)

// detachedContext keeps values of the parent context (request IDs, loggers)
// but never expires, so a shared operation is not cut short when its first caller goes away.
type detachedContext struct {
	parent context.Context
}

func (dctx detachedContext) Deadline() (deadline time.Time, ok bool) {
	return time.Time{}, false
}

func (dctx detachedContext) Done() <-chan struct{} {
	return nil
}

func (dctx detachedContext) Err() error {
	return nil
}

func (dctx detachedContext) Value(key interface{}) interface{} {
	return dctx.parent.Value(key)
}
