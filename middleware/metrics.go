/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelDryRun = "dry_run"
	metricsLabelScope  = "scope"
)

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// MetricsCollector represents collector of metrics for rate limiting rejects and store errors.
type MetricsCollector struct {
	RateLimitRejects *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
}

// NewMetricsCollector creates a new instance of MetricsCollector.
func NewMetricsCollector(namespace string) *MetricsCollector {
	rateLimitRejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejects_total",
		Help:      "Number of rejected requests due to rate limit exceeded.",
	}, []string{metricsLabelDryRun, metricsLabelScope})

	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_store_errors_total",
		Help:      "Number of rate limit checks that failed because the counter store was unavailable.",
	}, []string{metricsLabelScope})

	return &MetricsCollector{
		RateLimitRejects: rateLimitRejects,
		StoreErrors:      storeErrors,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (mc *MetricsCollector) MustCurryWith(labels prometheus.Labels) *MetricsCollector {
	return &MetricsCollector{
		RateLimitRejects: mc.RateLimitRejects.MustCurryWith(labels),
		StoreErrors:      mc.StoreErrors.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *MetricsCollector) MustRegister() {
	prometheus.MustRegister(
		mc.RateLimitRejects,
		mc.StoreErrors,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *MetricsCollector) Unregister() {
	prometheus.Unregister(mc.RateLimitRejects)
	prometheus.Unregister(mc.StoreErrors)
}

// ObserveReject increments the rejects counter.
func (mc *MetricsCollector) ObserveReject(scope string, dryRun bool) {
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	mc.RateLimitRejects.With(prometheus.Labels{metricsLabelDryRun: dryRunVal, metricsLabelScope: scope}).Inc()
}

// ObserveStoreError increments the store errors counter.
func (mc *MetricsCollector) ObserveStoreError(scope string) {
	mc.StoreErrors.With(prometheus.Labels{metricsLabelScope: scope}).Inc()
}
