/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		Message:        fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeRequestJSON reads at most maxSizeBytes of the request body and decodes them as a single JSON object.
// Unknown fields are rejected. Any problem with the body is reported as *MalformedRequestError.
func DecodeRequestJSON(rw http.ResponseWriter, r *http.Request, dst interface{}, maxSizeBytes uint64) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{http.StatusUnsupportedMediaType,
				fmt.Sprintf("Failed to parse Content-Type header: %s.", err)}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType)}
		}
	}

	decoder := json.NewDecoder(http.MaxBytesReader(rw, r.Body, int64(maxSizeBytes)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalTypeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return newBadRequestError("Request body must not be empty.")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return newBadRequestError("Request body contains badly-formed JSON.")
		case errors.As(err, &syntaxErr):
			return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
		case errors.As(err, &unmarshalTypeErr):
			return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset)
		case errors.As(err, &maxBytesErr):
			return NewTooLargeMalformedRequestError(maxSizeBytes)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return newBadRequestError("Request body contains unknown field %s.", strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return err
		}
	}
	if decoder.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

// ParseQueryInt parses an optional non-negative integer query parameter.
// defaultValue is returned if the parameter is absent, values above maxValue are rejected.
func ParseQueryInt(r *http.Request, name string, defaultValue, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, newBadRequestError("Query parameter %q must be a non-negative integer.", name)
	}
	if maxValue > 0 && val > maxValue {
		return 0, newBadRequestError("Query parameter %q must not be greater than %d.", name, maxValue)
	}
	return val, nil
}
