package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations on the query surface.
// Trust records and ring lookups are read-heavy between epochs; the cache is
// invalidated wholesale when a new epoch publishes.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetTrustRecord retrieves a cached current trust record.
	GetTrustRecord(ctx context.Context, userID string) (*TrustRecord, error)

	// SetTrustRecord caches a current trust record until the next epoch.
	SetTrustRecord(ctx context.Context, userID string, record *TrustRecord, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for ingestion rate accounting across nodes.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
