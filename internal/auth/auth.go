// Package auth authenticates HTTP callers (session JWT, API key, or internal
// shared secret) and carries the resulting identity through the request context.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Roles supported by the RBAC system.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEngineer = "engineer"
	RoleReadonly = "readonly"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleManager, RoleEngineer, RoleReadonly}

// Method describes how the caller was authenticated.
const (
	MethodSession  = "session"
	MethodAPIKey   = "apikey"
	MethodInternal = "internal"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject   string // user subject for session auth, "apikey:<prefix>" for key auth
	Email     string
	Role      string
	TenantID  uuid.UUID
	ProjectID uuid.UUID  // zero value for session identities not yet scoped to a project
	UserID    *uuid.UUID // non-nil for session-authenticated users
	APIKeyID  *uuid.UUID // non-nil for API-key authentication
	Scopes    []string   // ingest domains this API key may write; empty for session identities
	Method    string
}

// HasScope reports whether the identity's API key is scoped to domain. Session
// identities are not scope-restricted.
func (id *Identity) HasScope(domain string) bool {
	if id.Method != MethodAPIKey {
		return true
	}
	for _, s := range id.Scopes {
		if s == domain {
			return true
		}
	}
	return false
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashAPIKey returns the fixed one-way digest of a raw API key: the SHA-256
// hex encoding. Only the hash is ever persisted or cached.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
