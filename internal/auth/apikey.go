package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/cache"
	"github.com/pulsegrid/controlplane/internal/dbx"
)

// APIKeyAuthenticator validates API keys against the cache, falling back to
// the store on a miss.
type APIKeyAuthenticator struct {
	DB    dbx.DBTX
	Cache *cache.APIKeyCache
}

// APIKeyResult holds the resolved identity data from an API key lookup.
type APIKeyResult struct {
	KeyID     uuid.UUID
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// Authenticate hashes the raw key, resolves it via cache-then-store, and
// validates that it is active and unexpired. A negative store lookup is
// cached briefly so repeated invalid keys do not hammer the database.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*APIKeyResult, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	if entry, ok := a.Cache.Get(ctx, hash); ok {
		if !entry.Found || !entry.IsActive {
			return nil, fmt.Errorf("API key unknown or inactive")
		}
		if entry.ExpiresAt != nil && entry.ExpiresAt.Before(time.Now()) {
			return nil, fmt.Errorf("API key expired at %s", entry.ExpiresAt)
		}
		return &APIKeyResult{
			KeyID:     entry.KeyID,
			TenantID:  entry.TenantID,
			ProjectID: entry.ProjectID,
			Scopes:    entry.Scopes,
		}, nil
	}

	var (
		id        uuid.UUID
		tenantID  uuid.UUID
		projectID uuid.UUID
		prefix    string
		scopes    []string
		isActive  bool
		expiresAt *time.Time
	)

	row := a.DB.QueryRow(ctx, `
		SELECT id, tenant_id, project_id, key_prefix, scopes, is_active, expires_at
		FROM api_keys
		WHERE key_hash = $1
	`, hash)

	err := row.Scan(&id, &tenantID, &projectID, &prefix, &scopes, &isActive, &expiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			a.Cache.SetNotFound(ctx, hash)
			return nil, fmt.Errorf("API key not found")
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	a.Cache.SetFound(ctx, hash, cache.APIKeyEntry{
		KeyID:     id,
		TenantID:  tenantID,
		ProjectID: projectID,
		Scopes:    scopes,
		IsActive:  isActive,
		ExpiresAt: expiresAt,
	})

	if !isActive {
		return nil, fmt.Errorf("API key is inactive")
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", expiresAt)
	}

	// Best-effort touch; failure here must never block a valid request.
	go func() {
		_, _ = a.DB.Exec(context.Background(),
			`UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	}()

	return &APIKeyResult{
		KeyID:     id,
		TenantID:  tenantID,
		ProjectID: projectID,
		KeyPrefix: prefix,
		Scopes:    scopes,
	}, nil
}
