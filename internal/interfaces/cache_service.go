package interfaces

import (
	"context"
	"encoding/json"
	"time"
)

// CacheOptions controls how a produced value is stored
type CacheOptions struct {
	// TTL applies to the shared tier (default from config)
	TTL time.Duration
	// MemoryTTL applies to the in-process tier (default from config)
	MemoryTTL time.Duration
	// Tags index the key for group invalidation
	Tags []string
}

// FallbackFunc produces the value on a cache miss. The result is JSON
// marshaled once and stored in both tiers. A failed fallback caches nothing.
type FallbackFunc func(ctx context.Context) (interface{}, error)

// CacheService is the two-tier read-through cache shared across actions.
// Concurrent callers for the same key share a single in-flight fallback.
type CacheService interface {
	// GetOrSet returns the cached value or produces it via fallback
	GetOrSet(ctx context.Context, key string, fallback FallbackFunc, opts *CacheOptions) (json.RawMessage, error)

	// Delete removes a key from both tiers
	Delete(ctx context.Context, key string) error

	// InvalidateByPattern removes all keys sharing the prefix from both
	// tiers and returns how many were dropped
	InvalidateByPattern(ctx context.Context, prefix string) (int, error)

	// InvalidateByTag removes all keys registered under the tag
	InvalidateByTag(ctx context.Context, tag string) (int, error)

	// Close releases the shared tier connection
	Close() error
}
