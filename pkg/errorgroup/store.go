package errorgroup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store persists error groups and their occurrences.
type Store struct {
	db dbx.DBTX
}

// NewStore creates an errorgroup Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

const groupColumns = `id, tenant_id, project_id, service_name, class, normalized_message, fingerprint, occurrence_count, first_seen_at, last_seen_at, created_at`

// UpsertOccurrence folds one raw error report into its ErrorGroup: creating
// the group on first sight, otherwise bumping occurrence_count and
// last_seen_at. The (project_id, fingerprint) uniqueness constraint makes
// this safe under concurrent ingestion.
func (s *Store) UpsertOccurrence(ctx context.Context, tenantID, projectID uuid.UUID, req IngestErrorRequest) (ErrorGroup, error) {
	normalized := Normalize(req.Message)
	fp := Fingerprint(req.ServiceName, req.Class, normalized)
	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	query := `INSERT INTO error_groups (tenant_id, project_id, service_name, class, normalized_message, fingerprint, occurrence_count, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (project_id, fingerprint) DO UPDATE SET
			occurrence_count = error_groups.occurrence_count + 1,
			last_seen_at = GREATEST(error_groups.last_seen_at, EXCLUDED.last_seen_at)
		RETURNING ` + groupColumns

	var g ErrorGroup
	err := s.db.QueryRow(ctx, query, tenantID, projectID, req.ServiceName, req.Class, normalized, fp, ts).Scan(
		&g.ID, &g.TenantID, &g.ProjectID, &g.ServiceName, &g.Class, &g.NormalizedMessage, &g.Fingerprint,
		&g.OccurrenceCount, &g.FirstSeenAt, &g.LastSeenAt, &g.CreatedAt)
	if err != nil {
		return ErrorGroup{}, fmt.Errorf("upserting error group: %w", err)
	}

	occQuery := `INSERT INTO error_occurrences (error_group_id, message, stack_trace, "timestamp") VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, occQuery, g.ID, req.Message, req.StackTrace, ts); err != nil {
		return ErrorGroup{}, fmt.Errorf("inserting occurrence: %w", err)
	}

	return g, nil
}

// ListGroups returns a project's error groups ordered by most recently seen.
func (s *Store) ListGroups(ctx context.Context, projectID uuid.UUID, limit int) ([]ErrorGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM error_groups WHERE project_id = $1 ORDER BY last_seen_at DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing error groups: %w", err)
	}
	defer rows.Close()

	var items []ErrorGroup
	for rows.Next() {
		var g ErrorGroup
		if err := rows.Scan(&g.ID, &g.TenantID, &g.ProjectID, &g.ServiceName, &g.Class, &g.NormalizedMessage, &g.Fingerprint,
			&g.OccurrenceCount, &g.FirstSeenAt, &g.LastSeenAt, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning error group: %w", err)
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// ListOccurrences returns the most recent occurrences folded into a group.
func (s *Store) ListOccurrences(ctx context.Context, groupID uuid.UUID, limit int) ([]Occurrence, error) {
	query := `SELECT id, error_group_id, message, stack_trace, "timestamp" FROM error_occurrences
		WHERE error_group_id = $1 ORDER BY "timestamp" DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing occurrences: %w", err)
	}
	defer rows.Close()

	var items []Occurrence
	for rows.Next() {
		var o Occurrence
		if err := rows.Scan(&o.ID, &o.ErrorGroupID, &o.Message, &o.StackTrace, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning occurrence: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
