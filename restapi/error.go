/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"strings"
)

// Codes and messages of the errors the portal cache responds with most often.
const (
	ErrCodeInternal   = "internalError"
	ErrCodeNotFound   = "notFound"
	ErrCodeBadGateway = "badGateway"

	ErrMessageInternal   = "Internal error."
	ErrMessageNotFound   = "Not found."
	ErrMessageBadGateway = "Backend service failed to process the request."
)

// Error is the body of an error response: {"error": {"domain": ..., "code": ..., "message": ...}}.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// NewError creates a new Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewErrorForStatus creates an Error with the code derived from the status text
// (404 becomes "notFound", 429 becomes "tooManyRequests").
func NewErrorForStatus(domain string, httpStatusCode int, message string) *Error {
	return NewError(domain, errorCodeForStatus(httpStatusCode), message)
}

// NewInternalError creates the generic internal error of the domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext sets a context value and returns the error for chaining.
func (e *Error) AddContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

func errorCodeForStatus(httpStatusCode int) string {
	if httpStatusCode == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	words := strings.FieldsFunc(http.StatusText(httpStatusCode), func(r rune) bool { return r == ' ' || r == '-' })
	for i, w := range words {
		w = strings.ToLower(w)
		if i > 0 && w != "" {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		words[i] = w
	}
	return strings.Join(words, "")
}
