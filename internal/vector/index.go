// Package vector provides the semantic side of product retrieval: an
// append-only vector index searched by cosine similarity.
package vector

import "context"

// Filter restricts a search to the vectors whose key it accepts.
type Filter func(key string) bool

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, keys []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]*VectorResult, error)
	Size() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	Key      string
	Distance float64 // cosine distance, 1 - cosine
	Score    float64 // similarity, 1 - Distance clamped to [0, 1]
}
