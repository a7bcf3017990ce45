/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/bigschom/ss-portal/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData is the body of an error response.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// RespondJSON responds 200 with the JSON-encoded data.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes the status code and the JSON-encoded data.
// Content-Type is set to application/json unless the handler has already set it.
// A nil respData produces a response without body. HTML characters are not escaped.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logError(logger, "error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err := rw.Write(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})); err != nil {
		logError(logger, "error while writing response body", err)
	}
}

// RespondError writes {"error": {...}} with the status code.
// The error is logged (as a warning for 4xx) and counted in the restapi metrics.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		logResponseError(logger, httpStatusCode, err)
	}
	countResponseError(httpStatusCode, err)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{Err: err}, logger)
}

// RespondInternalError responds 500 with the generic internal error of the domain.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// RespondMalformedRequestOrInternalError responds with the status and the message of
// *MalformedRequestError found in err's chain, and with an internal error otherwise.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if !errors.As(err, &reqErr) {
		RespondInternalError(rw, domain, logger)
		return
	}
	RespondError(rw, reqErr.HTTPStatusCode, NewErrorForStatus(domain, reqErr.HTTPStatusCode, reqErr.Message), logger)
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}

func logResponseError(logger log.FieldLogger, httpStatusCode int, err *Error) {
	fields := []log.Field{
		log.Int("status", httpStatusCode),
		log.String("error_code", err.Code),
		log.String("error_message", err.Message),
	}
	if len(err.Context) > 0 {
		pairs := make([]string, 0, len(err.Context))
		for k, v := range err.Context {
			pairs = append(pairs, fmt.Sprintf("%s: %v", k, v))
		}
		sort.Strings(pairs)
		fields = append(fields, log.Strings("error_context", pairs))
	}
	if httpStatusCode >= http.StatusInternalServerError {
		logger.Error("error in response", fields...)
		return
	}
	logger.Warn("error in response", fields...)
}
