package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/cache"
)

// Service wraps Store with API-key minting and cache invalidation.
type Service struct {
	store    *Store
	keyCache *cache.APIKeyCache
	logger   *slog.Logger
}

// NewService creates a tenant Service.
func NewService(store *Store, keyCache *cache.APIKeyCache, logger *slog.Logger) *Service {
	return &Service{store: store, keyCache: keyCache, logger: logger}
}

// CreateTenant creates a new tenant.
func (s *Service) CreateTenant(ctx context.Context, name string) (Tenant, error) {
	return s.store.CreateTenant(ctx, name)
}

// GetTenant returns a single tenant.
func (s *Service) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// CreateProject creates a new project under a tenant.
func (s *Service) CreateProject(ctx context.Context, tenantID uuid.UUID, name, slug string) (Project, error) {
	return s.store.CreateProject(ctx, tenantID, name, slug)
}

// ListProjects lists a tenant's projects.
func (s *Service) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]Project, error) {
	return s.store.ListProjects(ctx, tenantID)
}

// GetProject returns a single project.
func (s *Service) GetProject(ctx context.Context, tenantID, id uuid.UUID) (Project, error) {
	return s.store.GetProject(ctx, tenantID, id)
}

// CreateAPIKey mints a new key, persists its hash, and returns the raw key
// exactly once. The raw key is never recoverable after this call returns.
func (s *Service) CreateAPIKey(ctx context.Context, tenantID, projectID uuid.UUID, req CreateAPIKeyRequest) (ApiKeyCreated, error) {
	raw, hash, prefix, err := generateAPIKey()
	if err != nil {
		return ApiKeyCreated{}, fmt.Errorf("minting API key: %w", err)
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		t := time.Now().Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	key, err := s.store.CreateAPIKey(ctx, CreateAPIKeyParams{
		TenantID:  tenantID,
		ProjectID: projectID,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Scopes:    req.Scopes,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return ApiKeyCreated{}, fmt.Errorf("persisting API key: %w", err)
	}

	return ApiKeyCreated{ApiKey: key, RawKey: raw}, nil
}

// ListAPIKeys lists a project's API keys. Only prefixes are ever exposed.
func (s *Service) ListAPIKeys(ctx context.Context, tenantID, projectID uuid.UUID) ([]ApiKey, error) {
	return s.store.ListAPIKeys(ctx, tenantID, projectID)
}

// RevokeAPIKey deactivates a key and evicts it from the hot-path cache so the
// revocation takes effect on the very next request, not after TTL expiry.
func (s *Service) RevokeAPIKey(ctx context.Context, tenantID, projectID, id uuid.UUID) error {
	hash, err := s.store.RevokeAPIKey(ctx, tenantID, projectID, id)
	if err != nil {
		return err
	}
	s.keyCache.Invalidate(ctx, hash)
	s.logger.InfoContext(ctx, "api key revoked", "key_id", id, "project_id", projectID)
	return nil
}
