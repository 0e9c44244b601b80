package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store provides database operations for tenants, projects, and API keys.
type Store struct {
	db dbx.DBTX
}

// NewStore creates a tenant Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.CreatedAt)
	return t, err
}

// CreateTenant inserts a new tenant.
func (s *Store) CreateTenant(ctx context.Context, name string) (Tenant, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO tenants (name) VALUES ($1) RETURNING id, name, created_at`, name)
	return scanTenant(row)
}

// GetTenant returns a single tenant.
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, created_at FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.CreatedAt)
	return p, err
}

// CreateProject inserts a new project under a tenant.
func (s *Store) CreateProject(ctx context.Context, tenantID uuid.UUID, name, slug string) (Project, error) {
	query := `INSERT INTO projects (tenant_id, name, slug) VALUES ($1, $2, $3)
		RETURNING id, tenant_id, name, slug, created_at`
	row := s.db.QueryRow(ctx, query, tenantID, name, slug)
	return scanProject(row)
}

// GetProject returns a single project scoped to its tenant.
func (s *Store) GetProject(ctx context.Context, tenantID, id uuid.UUID) (Project, error) {
	query := `SELECT id, tenant_id, name, slug, created_at FROM projects WHERE id = $1 AND tenant_id = $2`
	row := s.db.QueryRow(ctx, query, id, tenantID)
	return scanProject(row)
}

// ListProjects returns every project owned by a tenant.
func (s *Store) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]Project, error) {
	rows, err := s.db.Query(ctx, `SELECT id, tenant_id, name, slug, created_at FROM projects WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const apiKeyColumns = `id, tenant_id, project_id, key_prefix, scopes, is_active, expires_at, last_used_at, created_at`

func scanAPIKey(row pgx.Row) (ApiKey, error) {
	var k ApiKey
	err := row.Scan(&k.ID, &k.TenantID, &k.ProjectID, &k.KeyPrefix, &k.Scopes, &k.IsActive, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	return k, err
}

// CreateAPIKeyParams holds the fields persisted on key creation.
type CreateAPIKeyParams struct {
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	KeyHash   string
	KeyPrefix string
	Scopes    []string
	ExpiresAt *time.Time
}

// CreateAPIKey inserts a new API key row and returns it.
func (s *Store) CreateAPIKey(ctx context.Context, p CreateAPIKeyParams) (ApiKey, error) {
	query := `INSERT INTO api_keys (tenant_id, project_id, key_hash, key_prefix, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + apiKeyColumns
	row := s.db.QueryRow(ctx, query, p.TenantID, p.ProjectID, p.KeyHash, p.KeyPrefix, p.Scopes, p.ExpiresAt)
	return scanAPIKey(row)
}

// ListAPIKeys returns every API key scoped to a project.
func (s *Store) ListAPIKeys(ctx context.Context, tenantID, projectID uuid.UUID) ([]ApiKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing API keys: %w", err)
	}
	defer rows.Close()

	var items []ApiKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning API key: %w", err)
		}
		items = append(items, k)
	}
	return items, rows.Err()
}

// RevokeAPIKey deactivates a key. The caller is responsible for invalidating
// the cache entry for its hash afterward.
func (s *Store) RevokeAPIKey(ctx context.Context, tenantID, projectID, id uuid.UUID) (keyHash string, err error) {
	query := `UPDATE api_keys SET is_active = false WHERE id = $1 AND tenant_id = $2 AND project_id = $3 RETURNING key_hash`
	err = s.db.QueryRow(ctx, query, id, tenantID, projectID).Scan(&keyHash)
	if err != nil {
		return "", fmt.Errorf("revoking API key: %w", err)
	}
	return keyHash, nil
}
