/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects metrics of the queue.
type MetricsCollector interface {
	// SetRunning sets the number of running operations.
	SetRunning(int)
	// SetWaiting sets the number of operations waiting for a free slot.
	SetWaiting(int)
	// IncMerged increments the number of requests merged onto a recorded operation.
	IncMerged()
	// IncOperations increments the number of completed operations.
	IncOperations(succeeded bool)
	// ObserveWaitDuration observes how long an operation waited before it started.
	ObserveWaitDuration(time.Duration)
}

const (
	operationResultSuccess = "success"
	operationResultFailure = "failure"
)

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// ConstLabels are applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames are label names that must be curried with PrometheusMetrics.MustCurryWith
	// before the collector is used.
	CurriedLabelNames []string

	// WaitDurationBuckets are buckets of the wait duration histogram.
	// prometheus.DefBuckets are used if empty.
	WaitDurationBuckets []float64
}

// PrometheusMetrics is a MetricsCollector that exposes metrics to Prometheus.
type PrometheusMetrics struct {
	Running         *prometheus.GaugeVec
	Waiting         *prometheus.GaugeVec
	MergedTotal     *prometheus.CounterVec
	OperationsTotal *prometheus.CounterVec
	WaitDuration    *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new PrometheusMetrics with the given options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.WaitDurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return &PrometheusMetrics{
		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "request_queue_running",
			Help:        "Number of operations currently running.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		Waiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "request_queue_waiting",
			Help:        "Number of operations waiting for a free slot.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		MergedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "request_queue_merged_total",
			Help:        "Number of requests merged onto an already recorded operation.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "request_queue_operations_total",
			Help:        "Number of completed operations.",
			ConstLabels: opts.ConstLabels,
		}, append(append([]string(nil), opts.CurriedLabelNames...), "result")),
		WaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "request_queue_wait_duration_seconds",
			Help:        "Time an operation spent in the queue before it started.",
			ConstLabels: opts.ConstLabels,
			Buckets:     buckets,
		}, opts.CurriedLabelNames),
	}
}

// MustCurryWith curries the metrics with the given labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		Running:         pm.Running.MustCurryWith(labels),
		Waiting:         pm.Waiting.MustCurryWith(labels),
		MergedTotal:     pm.MergedTotal.MustCurryWith(labels),
		OperationsTotal: pm.OperationsTotal.MustCurryWith(labels),
		WaitDuration:    pm.WaitDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Running, pm.Waiting, pm.MergedTotal, pm.OperationsTotal, pm.WaitDuration)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Running)
	prometheus.Unregister(pm.Waiting)
	prometheus.Unregister(pm.MergedTotal)
	prometheus.Unregister(pm.OperationsTotal)
	prometheus.Unregister(pm.WaitDuration)
}

// SetRunning implements MetricsCollector.
func (pm *PrometheusMetrics) SetRunning(n int) {
	pm.Running.With(nil).Set(float64(n))
}

// SetWaiting implements MetricsCollector.
func (pm *PrometheusMetrics) SetWaiting(n int) {
	pm.Waiting.With(nil).Set(float64(n))
}

// IncMerged implements MetricsCollector.
func (pm *PrometheusMetrics) IncMerged() {
	pm.MergedTotal.With(nil).Inc()
}

// IncOperations implements MetricsCollector.
func (pm *PrometheusMetrics) IncOperations(succeeded bool) {
	result := operationResultFailure
	if succeeded {
		result = operationResultSuccess
	}
	pm.OperationsTotal.With(prometheus.Labels{"result": result}).Inc()
}

// ObserveWaitDuration implements MetricsCollector.
func (pm *PrometheusMetrics) ObserveWaitDuration(d time.Duration) {
	pm.WaitDuration.With(nil).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) SetRunning(int)                    {}
func (disabledMetrics) SetWaiting(int)                    {}
func (disabledMetrics) IncMerged()                        {}
func (disabledMetrics) IncOperations(bool)                {}
func (disabledMetrics) ObserveWaitDuration(time.Duration) {}

var disabledMetricsCollector = disabledMetrics{}
