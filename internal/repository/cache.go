package repository

import (
	"context"
	"strconv"
	"time"
)

// Cache is the key/value store behind ephemeral per-user state.
// Absent keys read as ErrCacheMiss. A zero TTL keeps a value until deleted.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Keys lists live keys under prefix; the janitor walks states with it.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// UserStatePrefix is shared by every per-user state key.
const UserStatePrefix = "owl:state:user:"

// CacheKey builds cache keys.
type CacheKey struct{}

// UserState is the key of one user's state.
func (CacheKey) UserState(userID int64) string {
	return UserStatePrefix + strconv.FormatInt(userID, 10)
}
