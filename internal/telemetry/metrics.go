// Package telemetry holds the process's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	MetricRefreshRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexds_refresh_runs_total",
			Help: "Total number of refresh orchestrator runs executed",
		},
	)
	MetricRefreshFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexds_refresh_failures_total",
			Help: "Total number of refresh orchestrator runs that returned an error",
		},
	)
	MetricRefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flexds_refresh_duration_seconds",
			Help:    "Duration of a refresh orchestrator run",
			Buckets: prometheus.DefBuckets,
		},
	)
	MetricCacheVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flexds_cache_version",
			Help: "Current resource cache version",
		},
	)
	MetricCacheResourceCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flexds_cache_resources",
			Help: "Number of resources held per xDS type",
		},
		[]string{"type_url"},
	)
	MetricADSActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flexds_ads_active_streams",
			Help: "Number of currently open ADS streams",
		},
	)
	MetricOpsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexds_ops_requests_total",
			Help: "Total number of operations facade calls, by resource/action/result",
		},
		[]string{"resource", "action", "result"},
	)
	MetricJWKSClustersProvisionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flexds_jwks_clusters_provisioned_total",
			Help: "Total number of JWKS clusters auto-provisioned during listener materialization",
		},
	)
)

// InitMetrics registers Prometheus metrics.
func InitMetrics() {
	prometheus.MustRegister(
		MetricRefreshRunsTotal,
		MetricRefreshFailuresTotal,
		MetricRefreshDurationSeconds,
		MetricCacheVersion,
		MetricCacheResourceCount,
		MetricADSActiveStreams,
		MetricOpsRequestsTotal,
		MetricJWKSClustersProvisionedTotal,
	)
}
