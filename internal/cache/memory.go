package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultMemorySize is the entry limit of a MemoryClient.
	DefaultMemorySize = 1000
	// DefaultMaxTTL bounds how long a MemoryClient keeps any entry.
	DefaultMaxTTL = time.Hour
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryClient implements Client on an in-process expirable LRU. Entries are
// evicted when the LRU is full, when their own TTL passes, or after maxTTL.
type MemoryClient struct {
	lru *expirable.LRU[string, memoryItem]
	now func() time.Time
}

// NewMemoryClient creates an in-memory cache. Non-positive arguments use the defaults.
func NewMemoryClient(size int, maxTTL time.Duration) *MemoryClient {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	return &MemoryClient{
		lru: expirable.NewLRU[string, memoryItem](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a value. A non-positive ttl keeps it until evicted.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, item)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// DeleteByPrefix removes all keys starting with prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryClient) Len() int {
	return c.lru.Len()
}

// Close purges the cache.
func (c *MemoryClient) Close() error {
	c.lru.Purge()
	return nil
}
