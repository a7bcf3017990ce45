/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/restapi"
)

func ExampleRespondError() {
	handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewErrorForStatus("PortalCache", http.StatusNotFound, "Service request not found.")
		restapi.RespondError(rw, http.StatusNotFound, apiErr, log.NewDisabledLogger())
	})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/portal/v1/service-requests/404", nil))
	fmt.Println(resp.Code)
	fmt.Println(resp.Body.String())

	// Output:
	// 404
	// {"error":{"domain":"PortalCache","code":"notFound","message":"Service request not found."}}
}

func ExampleDecodeRequestJSON() {
	type statusUpdate struct {
		Status string `json:"status"`
	}
	handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var upd statusUpdate
		if err := restapi.DecodeRequestJSON(rw, r, &upd, 4096); err != nil {
			restapi.RespondMalformedRequestOrInternalError(rw, "PortalCache", err, log.NewDisabledLogger())
			return
		}
		restapi.RespondJSON(rw, upd, log.NewDisabledLogger())
	})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/api/portal/v1/service-requests/42/status", nil))
	fmt.Println(resp.Code)
	fmt.Println(resp.Body.String())

	// Output:
	// 400
	// {"error":{"domain":"PortalCache","code":"badRequest","message":"Request body must not be empty."}}
}
