package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrDimensionMismatch is returned for vectors of the wrong size.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// memorySnapshot is an immutable view of the index contents.
type memorySnapshot struct {
	keys    []string
	vectors [][]float32
}

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Writers are serialized and publish a new snapshot; readers load the current
// snapshot without locking, so searches never wait on Add.
type MemoryIndex struct {
	dimensions int
	snap       atomic.Pointer[memorySnapshot]
	mu         sync.Mutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &MemoryIndex{dimensions: dimensions}
	m.snap.Store(&memorySnapshot{})
	return m, nil
}

// Dimensions returns the vector size the index accepts.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends vectors under the given keys. Keys need not be unique.
func (m *MemoryIndex) Add(ctx context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.snap.Load()
	next := &memorySnapshot{
		keys:    make([]string, len(old.keys), len(old.keys)+len(keys)),
		vectors: make([][]float32, len(old.vectors), len(old.vectors)+len(vectors)),
	}
	copy(next.keys, old.keys)
	copy(next.vectors, old.vectors)
	for i, key := range keys {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		next.keys = append(next.keys, key)
		next.vectors = append(next.vectors, vec)
	}
	m.snap.Store(next)
	return nil
}

// Search returns up to k vectors accepted by filter, by descending
// similarity. A nil filter accepts every vector; k <= 0 means no limit.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	snap := m.snap.Load()
	results := make([]*VectorResult, 0, len(snap.keys))
	for i, vec := range snap.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if filter != nil && !filter(snap.keys[i]) {
			continue
		}
		d := CosineDistance(query, vec)
		results = append(results, &VectorResult{Key: snap.keys[i], Distance: d, Score: Similarity(d)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return len(m.snap.Load().keys)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
