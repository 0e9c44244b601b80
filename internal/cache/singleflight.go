package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// lockTTL bounds how long a single-flight lock may be held before it
	// auto-expires, so a crashed holder never wedges a key permanently.
	lockTTL     = 60 * time.Second
	lockPrefix  = "lock:"
)

// Locker provides short-TTL, at-most-one-holder locks backed by Redis SETNX.
// A collider is expected to receive a conflict error rather than wait.
type Locker struct {
	rdb *redis.Client
}

// NewLocker creates a Locker.
func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func lockKey(name string) string {
	return lockPrefix + name
}

// Acquire attempts to take the named lock, returning true if this caller now
// holds it. The lock expires automatically after lockTTL regardless of
// Release, so a panicking holder cannot wedge the key forever.
func (l *Locker) Acquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(name), "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	return ok, nil
}

// Release frees the named lock early. Missing release before TTL expiry is a
// bug, not a recoverable failure — callers must defer Release immediately
// after a successful Acquire.
func (l *Locker) Release(ctx context.Context, name string) error {
	return l.rdb.Del(ctx, lockKey(name)).Err()
}
