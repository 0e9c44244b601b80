// Package metricstore persists raw telemetry (metrics, transactions, host
// samples) and derives the service-level indicators the alert engine and
// dashboards read: error rate, average/percentile latency, CPU/memory.
package metricstore

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the shape of a raw metric point.
type Kind string

const (
	KindGauge     Kind = "gauge"
	KindCounter   Kind = "counter"
	KindHistogram Kind = "histogram"
)

// MetricPoint is a single raw measurement ingested from an agent or SDK.
type MetricPoint struct {
	ID          int64          `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	ProjectID   uuid.UUID      `json:"project_id"`
	ServiceName string         `json:"service_name"`
	MetricName  string         `json:"metric_name"`
	Value       float64        `json:"value"`
	Kind        Kind           `json:"kind"`
	Tags        map[string]any `json:"tags"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Transaction is a single completed request/operation span, used to derive
// latency and error-rate SLIs.
type Transaction struct {
	ID                 int64     `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	ProjectID          uuid.UUID `json:"project_id"`
	ServiceName        string    `json:"service_name"`
	Endpoint           string    `json:"endpoint"`
	Method             string    `json:"method"`
	StatusCode         int       `json:"status_code"`
	DurationMS         float64   `json:"duration_ms"`
	DBDurationMS       float64   `json:"db_duration_ms"`
	ExternalDurationMS float64   `json:"external_duration_ms"`
	Error              bool      `json:"error"`
	Timestamp          time.Time `json:"timestamp"`
}

// HostSample is a point-in-time infrastructure resource reading.
type HostSample struct {
	ID            int64     `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	ServiceName   string    `json:"service_name"`
	CPUPercent    *float64  `json:"cpu_percent"`
	MemoryPercent *float64  `json:"memory_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// IngestMetricRequest is the payload shape for POST /ingest/metrics items.
type IngestMetricRequest struct {
	ServiceName string         `json:"service_name" validate:"required"`
	MetricName  string         `json:"metric_name" validate:"required"`
	Value       float64        `json:"value"`
	Kind        Kind           `json:"kind" validate:"required,oneof=gauge counter histogram"`
	Tags        map[string]any `json:"tags"`
	Timestamp   *time.Time     `json:"timestamp"`
}

// IngestTransactionRequest is the payload shape taken by
// ingest.Service.IngestTransactions. No ingest route decodes it: POST
// /ingest/traces takes tracing.IngestTraceRequest and POST /ingest/metrics
// takes IngestMetricRequest.
type IngestTransactionRequest struct {
	ServiceName        string     `json:"service_name" validate:"required"`
	Endpoint           string     `json:"endpoint" validate:"required"`
	Method             string     `json:"method" validate:"required"`
	StatusCode         int        `json:"status_code"`
	DurationMS         float64    `json:"duration_ms"`
	DBDurationMS       float64    `json:"db_duration_ms"`
	ExternalDurationMS float64    `json:"external_duration_ms"`
	Timestamp          *time.Time `json:"timestamp"`
}

// IngestHostSampleRequest is the payload shape for POST /ingest/infrastructure.
type IngestHostSampleRequest struct {
	ServiceName   string     `json:"service_name" validate:"required"`
	CPUPercent    *float64   `json:"cpu_percent"`
	MemoryPercent *float64   `json:"memory_percent"`
	Timestamp     *time.Time `json:"timestamp"`
}

// SLIKind classifies the SLI pattern a condition's metric_name matches,
// mirroring SPEC_FULL's tick-loop derivation rules.
type SLIKind int

const (
	SLIRawMetric SLIKind = iota
	SLIErrorRate
	SLILatency
	SLIResource
)

// ClassifySLI maps an alert condition's metric_name to the derivation rule
// the Alert Evaluation Engine should use, per SPEC_FULL §4.2.
func ClassifySLI(metricName string) SLIKind {
	switch {
	case hasPrefix(metricName, "error_rate"):
		return SLIErrorRate
	case hasPrefix(metricName, "response_time"), hasPrefix(metricName, "latency"):
		return SLILatency
	case hasPrefix(metricName, "cpu"), hasPrefix(metricName, "memory"):
		return SLIResource
	default:
		return SLIRawMetric
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// intervalSeconds renders a Go duration as a Postgres interval literal, since
// time.Duration.String() (e.g. "5m0s") is not interval syntax.
func intervalSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + " seconds"
}
