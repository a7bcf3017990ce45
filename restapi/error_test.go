/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeForStatus(t *testing.T) {
	for httpCode, wantErrCode := range map[int]string{
		http.StatusInternalServerError:   ErrCodeInternal,
		http.StatusNotFound:              ErrCodeNotFound,
		http.StatusBadGateway:            ErrCodeBadGateway,
		http.StatusBadRequest:            "badRequest",
		http.StatusTooManyRequests:       "tooManyRequests",
		http.StatusMethodNotAllowed:      "methodNotAllowed",
		http.StatusRequestEntityTooLarge: "requestEntityTooLarge",
		http.StatusMultiStatus:           "multiStatus",
		http.StatusNonAuthoritativeInfo:  "nonAuthoritativeInformation",
		599:                              "",
	} {
		assert.Equal(t, wantErrCode, errorCodeForStatus(httpCode), "status %d", httpCode)
	}
}

func TestError_AddContext(t *testing.T) {
	err := NewErrorForStatus("PortalCache", http.StatusNotFound, "Service request not found.").
		AddContext("id", "42").
		AddContext("type", "serviceRequest")
	assert.Equal(t, &Error{
		Domain:  "PortalCache",
		Code:    ErrCodeNotFound,
		Message: "Service request not found.",
		Context: map[string]interface{}{"id": "42", "type": "serviceRequest"},
	}, err)
}
