// Package webhookintake accepts signed CI/CD webhooks (GitHub, Azure DevOps)
// and records accepted deployment-related events as Deployment rows. Grounded
// on the teacher's pkg/alert.WebhookHandler (chi routes, a 1 MiB lenient JSON
// body reader, logged-and-ack'd unknown events) and internal/webhooksig for
// signature verification.
package webhookintake

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Connection binds an inbound connection_id path segment to the tenant and
// project it belongs to, and the sealed shared secret used to verify its
// webhook signatures.
type Connection struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ProjectID    uuid.UUID
	ConnectionID string
	Provider     string
	SealedSecret string
	IsEnabled    bool
}

// Deployment is a row created from an accepted webhook event.
type Deployment struct {
	TenantID     uuid.UUID
	ProjectID    uuid.UUID
	ConnectionID string
	Provider     string
	Ref          string
	SHA          string
	Environment  string
	Status       string
	TriggeredBy  string
}

// Store persists webhook connections and the deployments derived from them.
type Store struct {
	db dbx.DBTX
}

// NewStore creates a Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// ErrConnectionNotFound indicates no enabled connection matches the given
// connection_id and provider.
var ErrConnectionNotFound = fmt.Errorf("webhook connection not found or disabled")

// GetConnection resolves a connection_id path segment to its tenant scope and
// sealed secret, scoped to provider so a GitHub secret is never accidentally
// asked to verify an Azure DevOps signature.
func (s *Store) GetConnection(ctx context.Context, connectionID, provider string) (*Connection, error) {
	var c Connection
	row := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, project_id, connection_id, provider, sealed_secret, is_enabled
		FROM webhook_connections
		WHERE connection_id = $1 AND provider = $2
	`, connectionID, provider)

	if err := row.Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.ConnectionID, &c.Provider, &c.SealedSecret, &c.IsEnabled); err != nil {
		return nil, ErrConnectionNotFound
	}
	if !c.IsEnabled {
		return nil, ErrConnectionNotFound
	}
	return &c, nil
}

// CreateDeployment inserts a Deployment row.
func (s *Store) CreateDeployment(ctx context.Context, d Deployment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO deployments (tenant_id, project_id, connection_id, provider, ref, sha, environment, status, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.TenantID, d.ProjectID, d.ConnectionID, d.Provider, d.Ref, d.SHA, d.Environment, d.Status, d.TriggeredBy)
	if err != nil {
		return fmt.Errorf("creating deployment: %w", err)
	}
	return nil
}
