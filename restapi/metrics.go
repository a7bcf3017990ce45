/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// responseErrors counts error responses by domain, code and HTTP status.
// It stays nil (and nothing is counted) until MustInitAndRegisterMetrics is called.
var responseErrors *prometheus.CounterVec

// MustInitAndRegisterMetrics creates the counter of error responses and registers it in the default registry.
func MustInitAndRegisterMetrics(namespace string) {
	responseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restapi",
		Name:      "response_errors_total",
		Help:      "The total number of error responses by error domain, code and HTTP status.",
	}, []string{"domain", "code", "status"})
	prometheus.MustRegister(responseErrors)
}

// UnregisterMetrics removes the counter of error responses from the default registry.
func UnregisterMetrics() {
	if responseErrors == nil {
		return
	}
	prometheus.Unregister(responseErrors)
	responseErrors = nil
}

func countResponseError(status int, err *Error) {
	if responseErrors != nil {
		responseErrors.WithLabelValues(err.Domain, err.Code, strconv.Itoa(status)).Inc()
	}
}
