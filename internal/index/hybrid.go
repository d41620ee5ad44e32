// Package index implements the hybrid product index: every product is stored
// with an embedding vector and a token sequence, and searched by one of the
// matching stages.
package index

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/shohin/internal/embedding"
	"github.com/hyperjump/shohin/internal/keyword"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/normalize"
	"github.com/hyperjump/shohin/internal/vector"
	"go.uber.org/zap"
)

// DefaultName is the index name reported by Stats.
const DefaultName = "products"

// entry is one indexed product. Its position in the corpus is its key in
// both sub-indexes.
type entry struct {
	product *models.Product
	text    string
	tokens  []string
}

// corpus is an immutable, append-only list of entries.
type corpus struct {
	entries []*entry
}

// Stats describes the index contents.
type Stats struct {
	DocumentCount     int    `json:"document_count"`
	IndexName         string `json:"index_name"`
	EmbeddingModelID  string `json:"embedding_model_id"`
	LexicalIndexReady bool   `json:"lexical_index_ready"`
}

// Match is a ranked product with its scores.
type Match struct {
	Product       *models.Product
	Score         float64
	SemanticScore float64
	LexicalScore  float64
}

// HybridIndex stores products for semantic and lexical retrieval.
//
// Writers are serialized by mu. Readers load the published corpus without
// locking. The lexical corpus is rebuilt in full after every Add and then
// swapped in, so a search running during a rebuild scores against the
// previous lexical corpus.
type HybridIndex struct {
	name     string
	embedder embedding.Embedder
	vectors  *vector.MemoryIndex
	logger   *zap.Logger
	timeout  time.Duration

	mu   sync.Mutex
	data atomic.Pointer[corpus]

	buildLexical keyword.Builder
	lexMu        sync.RWMutex
	lexical      keyword.Scorer
}

// Option configures a HybridIndex.
type Option func(*HybridIndex)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(h *HybridIndex) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithName sets the index name reported by Stats.
func WithName(name string) Option {
	return func(h *HybridIndex) {
		if name != "" {
			h.name = name
		}
	}
}

// WithLexicalBuilder sets how the lexical corpus is built. The default is
// keyword.BuildBleve.
func WithLexicalBuilder(b keyword.Builder) Option {
	return func(h *HybridIndex) {
		if b != nil {
			h.buildLexical = b
		}
	}
}

// WithTimeout bounds every embedding call. Non-positive uses embedding.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HybridIndex) {
		h.timeout = d
	}
}

// New creates an empty index. It probes the embedder once and fails with
// ErrIndexInit when the backend is missing, unreachable, or reports a
// dimension it does not produce.
func New(ctx context.Context, embedder embedding.Embedder, opts ...Option) (*HybridIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder", ErrIndexInit)
	}
	h := &HybridIndex{
		name:         DefaultName,
		logger:       zap.NewNop(),
		buildLexical: keyword.BuildBleve,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.embedder = embedding.WithTimeout(embedder, h.timeout)

	probe, err := h.embedder.Embed(ctx, "probe")
	if err != nil {
		return nil, fmt.Errorf("%w: embedding backend: %v", ErrIndexInit, err)
	}
	if len(probe) == 0 || len(probe) != embedder.Dimensions() {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, backend reports %d", ErrIndexInit, len(probe), embedder.Dimensions())
	}
	vectors, err := vector.NewMemoryIndex(len(probe))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexInit, err)
	}
	h.vectors = vectors
	h.data.Store(&corpus{})
	return h, nil
}

// Add indexes products and rebuilds the lexical corpus over everything stored.
// The index is append-only: a product added twice is stored twice.
func (h *HybridIndex) Add(ctx context.Context, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	old := h.data.Load()
	added := make([]*entry, 0, len(products))
	texts := make([]string, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		text := normalize.SearchableText(p)
		added = append(added, &entry{product: p.Clone(), text: text, tokens: normalize.Tokens(text)})
		texts = append(texts, text)
	}
	if len(added) == 0 {
		return nil
	}

	vecs, err := h.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed products: %w", err)
	}
	if len(vecs) != len(added) {
		return fmt.Errorf("embedder returned %d vectors for %d products", len(vecs), len(added))
	}
	keys := make([]string, len(added))
	for i := range added {
		keys[i] = strconv.Itoa(len(old.entries) + i)
	}
	if err := h.vectors.Add(ctx, keys, vecs); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}

	next := &corpus{entries: make([]*entry, 0, len(old.entries)+len(added))}
	next.entries = append(next.entries, old.entries...)
	next.entries = append(next.entries, added...)
	h.data.Store(next)

	if err := h.rebuildLexical(next); err != nil {
		// semantic search keeps working on the new entries; lexical stays on
		// the previous corpus until the next successful rebuild
		h.logger.Error("Lexical index rebuild failed", zap.Error(err))
		return err
	}
	h.logger.Debug("Products indexed",
		zap.String("index", h.name),
		zap.Int("added", len(added)),
		zap.Int("total", len(next.entries)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (h *HybridIndex) rebuildLexical(c *corpus) error {
	docs := make([]keyword.Doc, len(c.entries))
	for i, e := range c.entries {
		docs[i] = keyword.Doc{Key: strconv.Itoa(i), Tokens: e.tokens}
	}
	built, err := h.buildLexical(docs)
	if err != nil {
		return fmt.Errorf("failed to rebuild lexical index: %w", err)
	}
	h.lexMu.Lock()
	old := h.lexical
	h.lexical = built
	h.lexMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Product returns the first indexed product with the given id.
func (h *HybridIndex) Product(id string) (*models.Product, bool) {
	for _, e := range h.data.Load().entries {
		if e.product.ID == id {
			return e.product.Clone(), true
		}
	}
	return nil, false
}

// Stats reports the index contents.
func (h *HybridIndex) Stats() Stats {
	h.lexMu.RLock()
	ready := h.lexical != nil
	h.lexMu.RUnlock()
	return Stats{
		DocumentCount:     len(h.data.Load().entries),
		IndexName:         h.name,
		EmbeddingModelID:  h.embedder.ModelID(),
		LexicalIndexReady: ready,
	}
}

// Close releases the sub-indexes. The embedder belongs to the caller.
func (h *HybridIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lexMu.Lock()
	lex := h.lexical
	h.lexical = nil
	h.lexMu.Unlock()
	if lex != nil {
		if err := lex.Close(); err != nil {
			return err
		}
	}
	return h.vectors.Close()
}
