/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package resultcache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigschom/ss-portal/lrucache"
)

// MetricsCollector collects metrics of the cache. The entries table reports the amount of entries,
// hits, misses and evictions through the embedded collector.
type MetricsCollector interface {
	lrucache.MetricsCollector
	// IncErrorsCached increments the number of remote errors put into the cache.
	IncErrorsCached()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// ConstLabels are applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames are label names that must be curried with PrometheusMetrics.MustCurryWith
	// before the collector is used.
	CurriedLabelNames []string
}

// PrometheusMetrics is a MetricsCollector that exposes metrics to Prometheus.
type PrometheusMetrics struct {
	EntryAmount       *prometheus.GaugeVec
	HitsTotal         *prometheus.CounterVec
	MissesTotal       *prometheus.CounterVec
	ErrorsCachedTotal *prometheus.CounterVec
	EvictionsTotal    *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new PrometheusMetrics with the given options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames)
	}
	return &PrometheusMetrics{
		EntryAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "result_cache_entries",
			Help:        "Number of entries in the result cache.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		HitsTotal:         counter("result_cache_hits_total", "Number of requests served from the result cache."),
		MissesTotal:       counter("result_cache_misses_total", "Number of requests not found in the result cache."),
		ErrorsCachedTotal: counter("result_cache_errors_cached_total", "Number of remote errors put into the result cache."),
		EvictionsTotal:    counter("result_cache_evictions_total", "Number of entries evicted from the result cache."),
	}
}

// MustCurryWith curries the metrics with the given labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntryAmount:       pm.EntryAmount.MustCurryWith(labels),
		HitsTotal:         pm.HitsTotal.MustCurryWith(labels),
		MissesTotal:       pm.MissesTotal.MustCurryWith(labels),
		ErrorsCachedTotal: pm.ErrorsCachedTotal.MustCurryWith(labels),
		EvictionsTotal:    pm.EvictionsTotal.MustCurryWith(labels),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.EntryAmount, pm.HitsTotal, pm.MissesTotal, pm.ErrorsCachedTotal, pm.EvictionsTotal)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EntryAmount)
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.ErrorsCachedTotal)
	prometheus.Unregister(pm.EvictionsTotal)
}

// SetAmount implements MetricsCollector.
func (pm *PrometheusMetrics) SetAmount(n int) {
	pm.EntryAmount.With(nil).Set(float64(n))
}

// IncHits implements MetricsCollector.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.With(nil).Inc()
}

// IncMisses implements MetricsCollector.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.With(nil).Inc()
}

// IncErrorsCached implements MetricsCollector.
func (pm *PrometheusMetrics) IncErrorsCached() {
	pm.ErrorsCachedTotal.With(nil).Inc()
}

// AddEvictions implements MetricsCollector.
func (pm *PrometheusMetrics) AddEvictions(n int) {
	pm.EvictionsTotal.With(nil).Add(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) IncErrorsCached() {}
func (disabledMetrics) AddEvictions(int) {}

var disabledMetricsCollector = disabledMetrics{}
