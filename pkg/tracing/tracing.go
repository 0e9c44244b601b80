// Package tracing persists distributed traces as a forest of spans and
// derives root span and aggregate duration for each trace.
package tracing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSpanOutsideTrace is returned when a span's parent_span_id references a
// span belonging to a different trace.
var ErrSpanOutsideTrace = errors.New("span parent belongs to a different trace")

// Trace is the root container for a forest of Spans sharing one trace ID.
type Trace struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	ServiceName string    `json:"service_name"`
	RootName    string    `json:"root_name"`
	StartedAt   time.Time `json:"started_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Span is one unit of work within a Trace.
type Span struct {
	ID           uuid.UUID      `json:"id"`
	TraceID      uuid.UUID      `json:"trace_id"`
	ParentSpanID *uuid.UUID     `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	ServiceName  string         `json:"service_name"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMS   float64        `json:"duration_ms"`
	Tags         map[string]any `json:"tags"`
}

// IngestSpanRequest is the wire shape of a single span in an
// IngestTraceRequest batch.
type IngestSpanRequest struct {
	ID           uuid.UUID      `json:"id" validate:"required"`
	ParentSpanID *uuid.UUID     `json:"parent_span_id,omitempty"`
	Name         string         `json:"name" validate:"required"`
	ServiceName  string         `json:"service_name" validate:"required"`
	StartedAt    time.Time      `json:"started_at" validate:"required"`
	DurationMS   float64        `json:"duration_ms"`
	Tags         map[string]any `json:"tags"`
}

// IngestTraceRequest is the payload for POST /ingest/traces: a trace ID plus
// every span observed for it in this batch.
type IngestTraceRequest struct {
	TraceID     uuid.UUID           `json:"trace_id" validate:"required"`
	ServiceName string              `json:"service_name" validate:"required"`
	Spans       []IngestSpanRequest `json:"spans" validate:"required,min=1,dive"`
}

// TraceDetail bundles a Trace with its full span forest, aggregate duration,
// and derived root span name.
type TraceDetail struct {
	Trace      Trace   `json:"trace"`
	Spans      []Span  `json:"spans"`
	DurationMS float64 `json:"duration_ms"`
}

// ValidateForest checks that no span's parent_span_id references a span ID
// absent from the same batch, enforcing the no-cross-trace-parent invariant
// before any row is persisted.
func ValidateForest(spans []IngestSpanRequest) error {
	ids := make(map[uuid.UUID]struct{}, len(spans))
	for _, s := range spans {
		ids[s.ID] = struct{}{}
	}
	for _, s := range spans {
		if s.ParentSpanID == nil {
			continue
		}
		if _, ok := ids[*s.ParentSpanID]; !ok {
			return ErrSpanOutsideTrace
		}
	}
	return nil
}

// deriveRoot returns the name of the span with no parent, or the earliest
// started span if every span has a parent (a partial batch).
func deriveRoot(spans []IngestSpanRequest) string {
	var root *IngestSpanRequest
	for i := range spans {
		s := &spans[i]
		if s.ParentSpanID == nil {
			return s.Name
		}
		if root == nil || s.StartedAt.Before(root.StartedAt) {
			root = s
		}
	}
	if root == nil {
		return ""
	}
	return root.Name
}

// aggregateDuration returns the wall-clock span of the whole forest: latest
// (start+duration) minus earliest start.
func aggregateDuration(spans []IngestSpanRequest) float64 {
	if len(spans) == 0 {
		return 0
	}
	earliest := spans[0].StartedAt
	var latest time.Time
	for _, s := range spans {
		if s.StartedAt.Before(earliest) {
			earliest = s.StartedAt
		}
		end := s.StartedAt.Add(time.Duration(s.DurationMS * float64(time.Millisecond)))
		if end.After(latest) {
			latest = end
		}
	}
	return float64(latest.Sub(earliest)) / float64(time.Millisecond)
}
