package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency by method, route pattern,
// and status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentctl",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// RunsAdmittedTotal counts admitted agent runs by tenant.
var RunsAdmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentctl",
		Subsystem: "runs",
		Name:      "admitted_total",
		Help:      "Total number of admitted agent runs.",
	},
	[]string{"tenant_id"},
)

// RunsRejectedTotal counts rejected agent runs by admission error kind.
var RunsRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentctl",
		Subsystem: "runs",
		Name:      "rejected_total",
		Help:      "Total number of rejected agent runs by error kind.",
	},
	[]string{"kind"},
)

// RunLatency tracks end-to-end gateway execution latency.
var RunLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "agentctl",
		Subsystem: "runs",
		Name:      "gateway_latency_seconds",
		Help:      "Agent gateway call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// ProvisioningJobsProcessedTotal counts worker outcomes by outcome: done,
// retry, or dead_letter.
var ProvisioningJobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentctl",
		Subsystem: "provisioning",
		Name:      "jobs_processed_total",
		Help:      "Total number of provisioning jobs processed by outcome.",
	},
	[]string{"outcome"},
)

// ProvisioningQueueDepth reports the last-observed number of queued jobs.
var ProvisioningQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "agentctl",
		Subsystem: "provisioning",
		Name:      "queue_depth",
		Help:      "Number of provisioning jobs currently queued.",
	},
)

// RateLimitDeniedTotal counts rate-limiter rejections by tenant.
var RateLimitDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentctl",
		Subsystem: "ratelimit",
		Name:      "denied_total",
		Help:      "Total number of requests denied by the rate limiter.",
	},
	[]string{"tenant_id"},
)

// All returns the control plane's own metrics for registration, separate
// from the standard Go/process collectors NewMetricsRegistry always adds.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		RunsAdmittedTotal,
		RunsRejectedTotal,
		RunLatency,
		ProvisioningJobsProcessedTotal,
		ProvisioningQueueDepth,
		RateLimitDeniedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors and the given service metrics.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
