/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests:
// a Recorder that keeps entries for inspection and a plain JSON logger writing to any io.Writer.
package logtest
