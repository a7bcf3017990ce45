/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelMethod       = "method"
	metricsLabelRoutePattern = "route_pattern"
	metricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets are the buckets of the request duration histogram.
// Cache hits land in the first ones, backend round trips in the rest.
var DefaultHTTPRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// DefaultHTTPResponseSizeBuckets are the buckets of the response size histogram.
var DefaultHTTPResponseSizeBuckets = prometheus.ExponentialBuckets(256, 4, 8)

// HTTPRequestMetricsCollectorOpts configures HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector collects metrics of the requests served by the gateway.
type HTTPRequestMetricsCollector struct {
	Durations     *prometheus.HistogramVec
	ResponseSizes *prometheus.HistogramVec
	InFlight      prometheus.Gauge
}

var _ prometheus.Collector = (*HTTPRequestMetricsCollector)(nil)

// NewHTTPRequestMetricsCollector creates a collector with default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod, metricsLabelRoutePattern, metricsLabelStatusCode}),
		ResponseSizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_response_size_bytes",
			Help:        "A histogram of the HTTP response body sizes.",
			Buckets:     DefaultHTTPResponseSizeBuckets,
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod, metricsLabelRoutePattern}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *HTTPRequestMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.Durations.Describe(ch)
	c.ResponseSizes.Describe(ch)
	c.InFlight.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *HTTPRequestMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.Durations.Collect(ch)
	c.ResponseSizes.Collect(ch)
	c.InFlight.Collect(ch)
}

// MustRegister registers the collector in the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c)
}

// Unregister removes the collector from the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c)
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern string, status, size int, elapsed time.Duration) {
	c.Durations.WithLabelValues(method, routePattern, strconv.Itoa(status)).Observe(elapsed.Seconds())
	c.ResponseSizes.WithLabelValues(method, routePattern).Observe(float64(size))
}

// HTTPRequestMetricsOpts configures the HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	// ExcludedEndpoints are URL paths that are not measured.
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that measures served requests.
// Requests are labeled with the route pattern, so the label set stays finite whatever the URL is.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a more configurable version of HTTPRequestMetrics.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, endpoint := range opts.ExcludedEndpoints {
		excluded[endpoint] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if _, ok := excluded[r.URL.Path]; ok {
				next.ServeHTTP(rw, r)
				return
			}

			started := GetRequestStartTimeFromContext(r.Context())
			if started.IsZero() {
				started = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), started))
			}
			collector.InFlight.Inc()
			defer collector.InFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				// The route pattern is known only after chi has routed the request.
				routePattern := getRoutePattern(r)
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler { //nolint:errorlint
						collector.observe(r.Method, routePattern, http.StatusInternalServerError, wrw.BytesWritten(), time.Since(started))
					}
					panic(p)
				}
				collector.observe(r.Method, routePattern, responseStatus(wrw), wrw.BytesWritten(), time.Since(started))
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}
