// internal/cache/store.go
package cache

import (
	"context"
	"time"
)

// Store is the ephemeral key-value surface the services are written against.
// Keys hold strings with TTL (presence), sets with optional TTL (roster,
// invites, chat indexes), lists (chat history) and hashes (per-match status).
// All operations may fail with a backend error; TTLs are wall-clock and are
// not refreshed by reads.
type Store interface {
	// SetWithTTL writes a marker value under key that expires after ttl.
	SetWithTTL(ctx context.Context, key string, ttl time.Duration) error

	// AddToSet adds value to the set at key. A non-zero ttl (re)arms the
	// expiry of the whole set.
	AddToSet(ctx context.Context, key, value string, ttl time.Duration) error
	RemoveFromSet(ctx context.Context, key, value string) error
	Members(ctx context.Context, key string) ([]string, error)

	ListPush(ctx context.Context, key, value string) error
	ListRange(ctx context.Context, key string) ([]string, error)

	HashSet(ctx context.Context, key, field, value string) error
	// HashGet returns ok=false when the field (or the hash) does not exist.
	HashGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDel(ctx context.Context, key, field string) error

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
