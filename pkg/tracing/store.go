package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store persists traces and their span forests.
type Store struct {
	db dbx.DBTX
}

// NewStore creates a tracing Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// CreateTrace upserts the Trace row for a batch, deriving root_name and
// started_at from the caller. Re-ingesting spans for a known trace ID is a
// no-op on the Trace row itself.
func (s *Store) CreateTrace(ctx context.Context, tenantID, projectID uuid.UUID, traceID uuid.UUID, serviceName, rootName string, startedAt time.Time) error {
	query := `INSERT INTO traces (id, tenant_id, project_id, service_name, root_name, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.db.Exec(ctx, query, traceID, tenantID, projectID, serviceName, rootName, startedAt)
	if err != nil {
		return fmt.Errorf("creating trace: %w", err)
	}
	return nil
}

// InsertSpans bulk-inserts every span in a batch.
func (s *Store) InsertSpans(ctx context.Context, traceID uuid.UUID, spans []IngestSpanRequest) error {
	for _, sp := range spans {
		query := `INSERT INTO spans (id, trace_id, parent_span_id, name, service_name, started_at, duration_ms, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`
		_, err := s.db.Exec(ctx, query, sp.ID, traceID, sp.ParentSpanID, sp.Name, sp.ServiceName, sp.StartedAt, sp.DurationMS, sp.Tags)
		if err != nil {
			return fmt.Errorf("inserting span %s: %w", sp.ID, err)
		}
	}
	return nil
}

// GetTraceDetail returns a trace and its full span forest with aggregate
// duration computed from the persisted spans.
func (s *Store) GetTraceDetail(ctx context.Context, projectID, traceID uuid.UUID) (TraceDetail, error) {
	var t Trace
	traceQuery := `SELECT id, tenant_id, project_id, service_name, root_name, started_at, created_at
		FROM traces WHERE id = $1 AND project_id = $2`
	err := s.db.QueryRow(ctx, traceQuery, traceID, projectID).Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.ServiceName, &t.RootName, &t.StartedAt, &t.CreatedAt)
	if err != nil {
		return TraceDetail{}, fmt.Errorf("getting trace: %w", err)
	}

	spanQuery := `SELECT id, trace_id, parent_span_id, name, service_name, started_at, duration_ms, tags
		FROM spans WHERE trace_id = $1 ORDER BY started_at`
	rows, err := s.db.Query(ctx, spanQuery, traceID)
	if err != nil {
		return TraceDetail{}, fmt.Errorf("listing spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	var maxEnd, minStart float64
	first := true
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return TraceDetail{}, fmt.Errorf("scanning span: %w", err)
		}
		spans = append(spans, sp)

		startOffset := float64(sp.StartedAt.Sub(t.StartedAt)) / 1e6
		end := startOffset + sp.DurationMS
		if first || startOffset < minStart {
			minStart = startOffset
		}
		if first || end > maxEnd {
			maxEnd = end
		}
		first = false
	}
	if err := rows.Err(); err != nil {
		return TraceDetail{}, fmt.Errorf("iterating spans: %w", err)
	}

	duration := 0.0
	if !first {
		duration = maxEnd - minStart
	}

	return TraceDetail{Trace: t, Spans: spans, DurationMS: duration}, nil
}

func scanSpan(row pgx.Row) (Span, error) {
	var sp Span
	err := row.Scan(&sp.ID, &sp.TraceID, &sp.ParentSpanID, &sp.Name, &sp.ServiceName, &sp.StartedAt, &sp.DurationMS, &sp.Tags)
	return sp, err
}
