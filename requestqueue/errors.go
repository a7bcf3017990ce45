/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrEmptyKey is returned for operations submitted with an empty key.
var ErrEmptyKey = errors.New("request key must not be empty")

// ErrNilOperation is returned when a nil operation is submitted.
var ErrNilOperation = errors.New("operation must not be nil")

// ErrGoexit is returned to the callers when an operation calls runtime.Goexit.
var ErrGoexit = errors.New("runtime.Goexit was called")

// PanicError is returned to all callers merged onto an operation that panicked.
type PanicError struct {
	Key   string
	Value interface{}
	Stack []byte
}

// Error implements error interface.
func (p *PanicError) Error() string {
	return fmt.Sprintf("operation %q panicked: %v\n\n%s", p.Key, p.Value, p.Stack)
}

// Unwrap returns the panic value if it is an error.
func (p *PanicError) Unwrap() error {
	err, ok := p.Value.(error)
	if !ok {
		return nil
	}
	return err
}

func newPanicError(key string, v interface{}) *PanicError {
	stack := debug.Stack()
	// The first line of the stack trace is "goroutine N [status]:",
	// it does not match the goroutine of the callers, so it is dropped.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Key: key, Value: v, Stack: stack}
}
