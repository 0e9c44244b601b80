package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store persists the ingest domains with no dedicated entity model.
type Store struct {
	db dbx.DBTX
}

// NewStore creates an ingest Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// InsertRawEvent persists one logs/browser/vulnerabilities payload.
func (s *Store) InsertRawEvent(ctx context.Context, tenantID, projectID uuid.UUID, domain Domain, serviceName string, payload any) error {
	query := `INSERT INTO raw_events (tenant_id, project_id, domain, service_name, payload) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(ctx, query, tenantID, projectID, domain, serviceName, payload)
	if err != nil {
		return fmt.Errorf("inserting raw event: %w", err)
	}
	return nil
}
