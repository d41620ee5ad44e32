package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 1024

// EmbeddingCache is an LRU cache for embeddings keyed by text. It is safe for concurrent use.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &EmbeddingCache{lru: c}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	return c.lru.Get(key)
}

// Set stores the embedding for key, evicting the least recently used entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.lru.Add(key, value)
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}
