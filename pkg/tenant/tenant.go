// Package tenant implements Tenant, Project, and ApiKey CRUD: the root
// isolation units every other domain package scopes its rows against.
package tenant

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant is the root billing/isolation unit.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a scoping container owned by a Tenant.
type Project struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// ApiKey is a long-lived bearer credential bound to one project. The raw key
// is never persisted; only keyPrefix (display) and keyHash (lookup) are.
type ApiKey struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	KeyPrefix   string     `json:"key_prefix"`
	Scopes      []string   `json:"scopes"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ApiKeyCreated additionally carries the raw key, emitted exactly once.
type ApiKeyCreated struct {
	ApiKey
	RawKey string `json:"raw_key"`
}

// IngestDomains are the valid scope values an API key may be granted.
var IngestDomains = []string{"metrics", "traces", "errors", "logs", "infrastructure", "browser", "vulnerabilities"}

const keyPrefixLiteral = "pg_"

// generateAPIKey mints a new raw key, its one-way hash, and its display
// prefix. Grounded on the teacher's apikey.generateAPIKey: crypto/rand
// entropy, SHA-256 hex digest, short prefix for display lists.
func generateAPIKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating key entropy: %w", err)
	}
	raw = keyPrefixLiteral + base64.RawURLEncoding.EncodeToString(buf)

	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])

	prefix = raw[:len(keyPrefixLiteral)+8]
	return raw, hash, prefix, nil
}

// CreateTenantRequest is the payload for POST /admin/tenants.
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// CreateProjectRequest is the payload for POST /admin/tenants/{tenantID}/projects.
type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required,max=100,alphanum"`
}

// CreateAPIKeyRequest is the payload for POST /api-keys.
type CreateAPIKeyRequest struct {
	Scopes       []string `json:"scopes" validate:"required,min=1,dive,oneof=metrics traces errors logs infrastructure browser vulnerabilities"`
	ExpiresInDays *int    `json:"expires_in_days" validate:"omitempty,min=1,max=3650"`
}
