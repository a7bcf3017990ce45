/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestType is the request type label used when neither options nor the request context set one.
const DefaultRequestType = "unknown"

// StatusTransportError is the status label of a request that got no response.
const StatusTransportError = "error"

// DefaultClientRequestDurationBuckets are the buckets of the backend request duration histogram.
var DefaultClientRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// MetricsCollector collects metrics of backend requests.
type MetricsCollector interface {
	// TrackRequest is called before a request is sent.
	// The returned function is called with the response status (or StatusTransportError) when the request is done.
	TrackRequest(requestType, host, method string) (done func(status string))
}

// PrometheusMetricsCollector is a MetricsCollector that exposes metrics to Prometheus.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
var _ prometheus.Collector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a PrometheusMetricsCollector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the backend request durations.",
			Buckets:   DefaultClientRequestDurationBuckets,
		}, []string{"type", "remote_address", "method", "status"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_client_requests_in_flight",
			Help:      "Current number of backend requests waiting for a response.",
		}, []string{"type"}),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	p.Durations.Describe(ch)
	p.InFlight.Describe(ch)
}

// Collect implements prometheus.Collector.
func (p *PrometheusMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	p.Durations.Collect(ch)
	p.InFlight.Collect(ch)
}

// MustRegister registers the collector in the default Prometheus registry.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p)
}

// Unregister removes the collector from the default Prometheus registry.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p)
}

// TrackRequest implements MetricsCollector.
func (p *PrometheusMetricsCollector) TrackRequest(requestType, host, method string) func(status string) {
	inFlight := p.InFlight.WithLabelValues(requestType)
	inFlight.Inc()
	started := time.Now()
	return func(status string) {
		inFlight.Dec()
		p.Durations.WithLabelValues(requestType, host, method, status).Observe(time.Since(started).Seconds())
	}
}

// MetricsRoundTripperOpts configures MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// RequestType is the default request type label (e.g. "portal_backend").
	// A type set with NewContextWithRequestType takes precedence.
	RequestType string
	Collector   MetricsCollector
}

// MetricsRoundTripper measures backend requests.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripperWithOpts creates a MetricsRoundTripper.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	rt := &MetricsRoundTripper{Delegate: delegate, RequestType: opts.RequestType, Collector: opts.Collector}
	if rt.RequestType == "" {
		rt.RequestType = DefaultRequestType
	}
	return rt
}

// RoundTrip implements http.RoundTripper.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}
	requestType := GetRequestTypeFromContext(r.Context())
	if requestType == "" {
		requestType = rt.RequestType
	}
	done := rt.Collector.TrackRequest(requestType, r.URL.Host, r.Method)
	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil || resp == nil {
		done(StatusTransportError)
		return resp, err
	}
	done(strconv.Itoa(resp.StatusCode))
	return resp, nil
}
