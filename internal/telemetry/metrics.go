package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pulsegrid",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// IngestEventsTotal counts ingested telemetry batches by domain and outcome.
var IngestEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total number of ingest batch requests by domain and outcome.",
	},
	[]string{"domain", "outcome"},
)

// AlertTicksTotal counts alert engine tick executions.
var AlertTicksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "alert_engine",
		Name:      "ticks_total",
		Help:      "Total number of alert evaluation ticks executed.",
	},
)

// AlertsFiredTotal counts alert fire transitions by condition severity.
var AlertsFiredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "alert_engine",
		Name:      "fired_total",
		Help:      "Total number of alerts transitioned to firing.",
	},
	[]string{"severity"},
)

// AlertsResolvedTotal counts alert resolve transitions.
var AlertsResolvedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "alert_engine",
		Name:      "resolved_total",
		Help:      "Total number of alerts transitioned to resolved.",
	},
)

// AIRequestsTotal counts AI enrichment calls by outcome (ok, cached, conflict, error).
var AIRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "ai",
		Name:      "requests_total",
		Help:      "Total number of AI enrichment requests by outcome.",
	},
	[]string{"outcome"},
)

// AICostTotal accumulates AI spend in USD.
var AICostTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "ai",
		Name:      "cost_usd_total",
		Help:      "Cumulative AI enrichment cost in USD.",
	},
)

// WSSessionsActive tracks the number of live realtime gateway sessions.
var WSSessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pulsegrid",
		Subsystem: "realtime",
		Name:      "sessions_active",
		Help:      "Number of currently connected realtime gateway sessions.",
	},
)

// NotifierDeliveryTotal counts notification deliveries by channel kind and outcome.
var NotifierDeliveryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsegrid",
		Subsystem: "notifier",
		Name:      "delivery_total",
		Help:      "Total number of notification delivery attempts by channel kind and outcome.",
	},
	[]string{"channel_kind", "outcome"},
)

// All returns the service-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		IngestEventsTotal,
		AlertTicksTotal,
		AlertsFiredTotal,
		AlertsResolvedTotal,
		AIRequestsTotal,
		AICostTotal,
		WSSessionsActive,
		NotifierDeliveryTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// and any additional service-specific collectors passed as arguments.
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
