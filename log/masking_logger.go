/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"unsafe"

	"github.com/ssgreg/logf"
)

// StringMasker masks secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

// MaskingLogger masks secrets in messages and fields before passing them to the wrapped logger.
// Dumps of backend requests and transport errors (URLs with "apikey=...") go through it.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger wraps the logger.
func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{l, m}
}

// With returns a logger that adds the masked fields to every entry.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

// Debug logs the masked message at "debug" level.
func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

// Info logs the masked message at "info" level.
func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

// Warn logs the masked message at "warn" level.
func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

// Error logs the masked message at "error" level.
func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

// Debugf logs a formatted masked message at "debug" level.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted masked message at "info" level.
func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted masked message at "warn" level.
func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted masked message at "error" level.
func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel calls fn only if the level is enabled, the LogFunc passed to fn masks its arguments.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

// WithLevel returns a masking logger with an additional level check.
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

var stringSliceType = reflect.TypeOf([]string{})

// maskFields returns fields unchanged (same slice) when nothing was masked.
// Fields of logf.FieldTypeAny are not inspected.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var result []Field
	replace := func(i int, f Field) {
		if result == nil {
			result = make([]Field, len(fields))
			copy(result, fields)
		}
		result[i] = f
	}

	for i := range fields {
		field := fields[i]
		switch field.Type {
		case logf.FieldTypeBytesToString:
			s := *(*string)(unsafe.Pointer(&field.Bytes)) // nolint: gosec
			if masked := l.masker.Mask(s); masked != s {
				replace(i, String(field.Key, masked))
			}
		case logf.FieldTypeError:
			err, ok := field.Any.(error)
			if !ok || err == nil {
				continue
			}
			s := err.Error()
			if masked := l.masker.Mask(s); masked != s {
				replace(i, NamedError(field.Key, newMaskedError(err, l.masker, masked)))
			}
		case logf.FieldTypeBytes, logf.FieldTypeRawBytes:
			if field.Bytes == nil {
				continue
			}
			if masked := l.masker.Mask(string(field.Bytes)); masked != string(field.Bytes) {
				replace(i, logf.ConstBytes(field.Key, []byte(masked)))
			}
		case logf.FieldTypeArray:
			if field.Any == nil {
				continue
			}
			value := reflect.ValueOf(field.Any)
			if !value.CanConvert(stringSliceType) {
				continue
			}
			if masked, changed := l.maskStrings(value.Convert(stringSliceType).Interface().([]string)); changed {
				replace(i, Strings(field.Key, masked))
			}
		}
	}

	if result == nil {
		return fields
	}
	return result
}

func (l MaskingLogger) maskStrings(ss []string) ([]string, bool) {
	var changed bool
	masked := make([]string, len(ss))
	for i, s := range ss {
		masked[i] = l.masker.Mask(s)
		changed = changed || masked[i] != s
	}
	return masked, changed
}

func newMaskedError(err error, m StringMasker, masked string) error {
	if _, ok := err.(fmt.Formatter); ok {
		return maskedError{s: masked, verboseS: m.Mask(fmt.Sprintf("%+v", err))}
	}
	return errors.New(masked)
}

// maskedError keeps the verbose ("%+v") form of the original error for logf's "error_verbose" field.
type maskedError struct {
	s        string
	verboseS string
}

func (e maskedError) Error() string {
	return e.s
}

func (e maskedError) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, e.verboseS)
}
