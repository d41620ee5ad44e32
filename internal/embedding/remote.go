package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/shohin/internal/vector"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// RemoteEmbedder calls an OpenAI-compatible embedding endpoint, such as
// Ollama's /v1 API, and caches results by text.
type RemoteEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
	cache      *EmbeddingCache
	logger     *zap.Logger
}

// RemoteConfig configures a RemoteEmbedder.
type RemoteConfig struct {
	BaseURL    string
	Model      string
	Token      string
	Dimensions int
	CacheSize  int
	Logger     *zap.Logger
}

// NewRemoteEmbedder creates an embedder backed by an OpenAI-compatible service.
func NewRemoteEmbedder(cfg RemoteConfig) (*RemoteEmbedder, error) {
	token := cfg.Token
	if token == "" {
		// local services do not authenticate, but the client requires a token
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteEmbedder{
		embedder:   emb,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cache:      NewEmbeddingCache(cfg.CacheSize),
		logger:     logger,
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	out, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Warn("remote embedding failed", zap.String("model", e.model), zap.Error(err))
		return nil, fmt.Errorf("remote embedding: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("remote embedding: expected 1 vector, got %d", len(out))
	}
	return e.accept(text, out[0])
}

// EmbedBatch embeds uncached texts in a single request.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			result[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}
	e.logger.Debug("remote embedding batch", zap.Int("count", len(missing)))
	out, err := e.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("remote embedding: %w", err)
	}
	if len(out) != len(missing) {
		return nil, fmt.Errorf("remote embedding: expected %d vectors, got %d", len(missing), len(out))
	}
	for j, vec := range out {
		emb, err := e.accept(missing[j], vec)
		if err != nil {
			return nil, err
		}
		result[missingIdx[j]] = emb
	}
	return result, nil
}

func (e *RemoteEmbedder) accept(text string, vec []float32) ([]float32, error) {
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d, want %d", ErrDimensionMismatch, e.model, len(vec), e.dimensions)
	}
	emb := make([]float32, len(vec))
	copy(emb, vec)
	vector.Normalize(emb)
	e.cache.Set(text, emb)
	return emb, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the remote model name.
func (e *RemoteEmbedder) ModelID() string {
	return e.model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *RemoteEmbedder) Close() error {
	return nil
}
