// Package embedding provides text embedding backends, caching, and call timeouts.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingTimeout is returned when an embedding call exceeds its deadline.
	ErrEmbeddingTimeout = errors.New("embedding timed out")
	// ErrDimensionMismatch is returned when a backend yields vectors of an unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces vector embeddings for text. Identical input yields identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}

// embedEach implements EmbedBatch on top of Embed.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
