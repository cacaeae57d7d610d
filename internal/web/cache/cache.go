// Package cache stores rendered collection responses. Collection endpoints
// only depend on the route table and the query, so a response can be served
// again until the table is rebuilt.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by New
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrMiss is returned by Get when a key is not cached
var ErrMiss = errors.New("cache miss")

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is used when Set is called without a TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "gas:",
	}
}

// Options selects and configures a backend
type Options struct {
	Backend string
	TTL     time.Duration
	Redis   RedisConfig
}

// New creates the backend named by opts.Backend. The "none" backend (or an
// empty name) returns a nil Cache.
func New(opts Options) (Cache, error) {
	config := DefaultConfig()
	if opts.TTL > 0 {
		config.DefaultTTL = opts.TTL
	}

	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryCacheWithConfig(config), nil
	case BackendRedis:
		redisConfig := opts.Redis
		redisConfig.Config = config
		return NewRedisCacheWithConfig(redisConfig)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// IsMiss checks if an error is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
