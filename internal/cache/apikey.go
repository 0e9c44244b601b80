// Package cache wraps Redis-backed hot paths shared across the module: API-key
// lookup caching and the AI single-flight lock.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	apiKeyPositiveTTL = 5 * time.Minute
	apiKeyNegativeTTL = 30 * time.Second
	apiKeyPrefix      = "apikey:"
)

// APIKeyEntry is the cached shape of a resolved API key.
type APIKeyEntry struct {
	Found     bool      `json:"found"`
	KeyID     uuid.UUID `json:"key_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Scopes    []string  `json:"scopes"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// APIKeyCache is a Redis-backed cache in front of the API key store. It is
// authoritative for speed, not correctness: callers must invalidate an entry
// whenever the underlying key is rotated, deactivated, or rescoped.
type APIKeyCache struct {
	rdb *redis.Client
}

// NewAPIKeyCache creates an APIKeyCache.
func NewAPIKeyCache(rdb *redis.Client) *APIKeyCache {
	return &APIKeyCache{rdb: rdb}
}

func apiKeyCacheKey(hash string) string {
	return apiKeyPrefix + hash
}

// Get returns the cached entry for a key hash, or (nil, false) on cache miss.
// Redis errors are treated as a miss so the caller falls through to the store.
func (c *APIKeyCache) Get(ctx context.Context, hash string) (*APIKeyEntry, bool) {
	raw, err := c.rdb.Get(ctx, apiKeyCacheKey(hash)).Bytes()
	if err != nil {
		return nil, false
	}

	var entry APIKeyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// SetFound caches a positive lookup for apiKeyPositiveTTL.
func (c *APIKeyCache) SetFound(ctx context.Context, hash string, entry APIKeyEntry) {
	entry.Found = true
	c.set(ctx, hash, entry, apiKeyPositiveTTL)
}

// SetNotFound caches a negative lookup briefly, so a storm of invalid keys
// does not repeatedly hit the store.
func (c *APIKeyCache) SetNotFound(ctx context.Context, hash string) {
	c.set(ctx, hash, APIKeyEntry{Found: false}, apiKeyNegativeTTL)
}

// Invalidate removes a cached entry immediately, e.g. after key rotation.
func (c *APIKeyCache) Invalidate(ctx context.Context, hash string) {
	c.rdb.Del(ctx, apiKeyCacheKey(hash))
}

func (c *APIKeyCache) set(ctx context.Context, hash string, entry APIKeyEntry, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Cache-layer failures are silently bypassed; the store remains the
	// source of truth.
	_ = c.rdb.Set(ctx, apiKeyCacheKey(hash), raw, ttl).Err()
}
