/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package throttle

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelDryRun = "dry_run"
	metricsLabelRule   = "rule"
)

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// MetricsCollector counts requests rejected by rate limiting.
type MetricsCollector struct {
	RateLimitRejects *prometheus.CounterVec
}

// NewMetricsCollector creates a new instance of MetricsCollector.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return &MetricsCollector{
		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Number of rejected requests due to rate limit exceeded.",
		}, []string{metricsLabelDryRun, metricsLabelRule}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *MetricsCollector) MustRegister() {
	prometheus.MustRegister(mc.RateLimitRejects)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *MetricsCollector) Unregister() {
	prometheus.Unregister(mc.RateLimitRejects)
}

func (mc *MetricsCollector) incRateLimitRejects(rule string, dryRun bool) {
	if mc == nil {
		return
	}
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	mc.RateLimitRejects.With(prometheus.Labels{metricsLabelDryRun: dryRunVal, metricsLabelRule: rule}).Inc()
}
