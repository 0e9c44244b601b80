package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/pkg/errorgroup"
	"github.com/pulsegrid/controlplane/pkg/metricstore"
	"github.com/pulsegrid/controlplane/pkg/tracing"
)

// Service fans an authenticated, tenant-scoped ingest batch out to the store
// that owns its domain.
type Service struct {
	store       *Store
	metrics     *metricstore.Store
	tracingSvc  *tracing.Service
	errorGroups *errorgroup.Store
	logger      *slog.Logger
}

// NewService creates an ingest Service.
func NewService(store *Store, metrics *metricstore.Store, tracingSvc *tracing.Service, errorGroups *errorgroup.Store, logger *slog.Logger) *Service {
	return &Service{store: store, metrics: metrics, tracingSvc: tracingSvc, errorGroups: errorGroups, logger: logger}
}

// IngestMetrics persists a batch of raw metric points.
func (s *Service) IngestMetrics(ctx context.Context, tenantID, projectID uuid.UUID, items []metricstore.IngestMetricRequest) (int, error) {
	for _, item := range items {
		ts := time.Now()
		if item.Timestamp != nil {
			ts = *item.Timestamp
		}
		p := metricstore.MetricPoint{
			ServiceName: item.ServiceName,
			MetricName:  item.MetricName,
			Value:       item.Value,
			Kind:        item.Kind,
			Tags:        item.Tags,
			Timestamp:   ts,
		}
		if err := s.metrics.InsertMetricPoint(ctx, tenantID, projectID, p); err != nil {
			return 0, fmt.Errorf("ingesting metric point: %w", err)
		}
	}
	return len(items), nil
}

// IngestTransactions persists a batch of HTTP transaction records, the
// latency/error-rate source for the metricstore-derived SLIs.
func (s *Service) IngestTransactions(ctx context.Context, tenantID, projectID uuid.UUID, items []metricstore.IngestTransactionRequest) (int, error) {
	for _, item := range items {
		ts := time.Now()
		if item.Timestamp != nil {
			ts = *item.Timestamp
		}
		tx := metricstore.Transaction{
			ServiceName:        item.ServiceName,
			Endpoint:           item.Endpoint,
			Method:             item.Method,
			StatusCode:         item.StatusCode,
			DurationMS:         item.DurationMS,
			DBDurationMS:       item.DBDurationMS,
			ExternalDurationMS: item.ExternalDurationMS,
			Error:              item.StatusCode >= 500,
			Timestamp:          ts,
		}
		if err := s.metrics.InsertTransaction(ctx, tenantID, projectID, tx); err != nil {
			return 0, fmt.Errorf("ingesting transaction: %w", err)
		}
	}
	return len(items), nil
}

// IngestHostSamples persists a batch of infrastructure resource readings.
func (s *Service) IngestHostSamples(ctx context.Context, tenantID, projectID uuid.UUID, items []metricstore.IngestHostSampleRequest) (int, error) {
	for _, item := range items {
		ts := time.Now()
		if item.Timestamp != nil {
			ts = *item.Timestamp
		}
		hs := metricstore.HostSample{
			ServiceName:   item.ServiceName,
			CPUPercent:    item.CPUPercent,
			MemoryPercent: item.MemoryPercent,
			Timestamp:     ts,
		}
		if err := s.metrics.InsertHostSample(ctx, tenantID, projectID, hs); err != nil {
			return 0, fmt.Errorf("ingesting host sample: %w", err)
		}
	}
	return len(items), nil
}

// IngestTraces validates and persists a batch of traces, each with its own
// span forest.
func (s *Service) IngestTraces(ctx context.Context, tenantID, projectID uuid.UUID, items []tracing.IngestTraceRequest) (int, error) {
	count := 0
	for _, item := range items {
		if err := s.tracingSvc.Ingest(ctx, tenantID, projectID, item); err != nil {
			return count, fmt.Errorf("ingesting trace %s: %w", item.TraceID, err)
		}
		count += len(item.Spans)
	}
	return count, nil
}

// IngestErrors folds a batch of raw error reports into their error groups.
func (s *Service) IngestErrors(ctx context.Context, tenantID, projectID uuid.UUID, items []errorgroup.IngestErrorRequest) (int, error) {
	for _, item := range items {
		if _, err := s.errorGroups.UpsertOccurrence(ctx, tenantID, projectID, item); err != nil {
			return 0, fmt.Errorf("ingesting error: %w", err)
		}
	}
	return len(items), nil
}

// IngestRaw persists a batch of payloads for a domain with no dedicated
// entity model (logs, browser, vulnerabilities).
func (s *Service) IngestRaw(ctx context.Context, tenantID, projectID uuid.UUID, domain Domain, serviceName string, items []map[string]any) (int, error) {
	for _, item := range items {
		if err := s.store.InsertRawEvent(ctx, tenantID, projectID, domain, serviceName, item); err != nil {
			return 0, fmt.Errorf("ingesting %s event: %w", domain, err)
		}
	}
	return len(items), nil
}
