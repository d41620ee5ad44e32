// Package cache stores search responses in Redis or in process memory.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SearchPrefix is the key prefix of cached search responses. Ingestion
// drops every key under it after adding products.
const SearchPrefix = "search:"

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key joins key components with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
