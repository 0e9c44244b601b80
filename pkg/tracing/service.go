package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service validates and persists trace batches and serves trace detail reads.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a tracing Service.
func NewService(store *Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Ingest validates the span forest, then persists the Trace and its spans.
func (s *Service) Ingest(ctx context.Context, tenantID, projectID uuid.UUID, req IngestTraceRequest) error {
	if err := ValidateForest(req.Spans); err != nil {
		return err
	}

	root := deriveRoot(req.Spans)
	earliest := req.Spans[0].StartedAt
	for _, sp := range req.Spans {
		if sp.StartedAt.Before(earliest) {
			earliest = sp.StartedAt
		}
	}

	if err := s.store.CreateTrace(ctx, tenantID, projectID, req.TraceID, req.ServiceName, root, earliest); err != nil {
		return fmt.Errorf("creating trace: %w", err)
	}
	if err := s.store.InsertSpans(ctx, req.TraceID, req.Spans); err != nil {
		return fmt.Errorf("inserting spans: %w", err)
	}
	return nil
}

// GetTraceDetail returns a trace with its full span forest.
func (s *Service) GetTraceDetail(ctx context.Context, projectID, traceID uuid.UUID) (TraceDetail, error) {
	return s.store.GetTraceDetail(ctx, projectID, traceID)
}
