// Package search answers staged product queries on top of the hybrid index.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/hyperjump/shohin/internal/cache"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/models"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a cached response is served.
const DefaultCacheTTL = 5 * time.Minute

// Engine validates queries, routes them to the index and caches responses.
type Engine struct {
	index      *index.HybridIndex
	cache      cache.Client
	ttl        time.Duration
	thresholds map[models.Stage]float64
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCache caches responses in c for ttl. Non-positive ttl uses DefaultCacheTTL.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithStageThreshold sets the similarity threshold used for stage when the
// query carries none.
func WithStageThreshold(stage models.Stage, threshold float64) Option {
	return func(e *Engine) {
		e.thresholds[stage] = threshold
	}
}

// NewEngine creates a search engine over idx.
func NewEngine(idx *index.HybridIndex, opts ...Option) *Engine {
	e := &Engine{
		index:      idx,
		ttl:        DefaultCacheTTL,
		thresholds: make(map[models.Stage]float64),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs a copy of in against the index; in is never modified. Invalid queries return the
// validation error; retrieval failures return *index.RetrievalError. An
// empty result set is reported through NoRelevantInformation.
func (e *Engine) Search(ctx context.Context, in *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	query := in.Clone()
	stage, err := models.ParseStage(string(query.Stage))
	if err != nil {
		return nil, err
	}
	if query.SimilarityThreshold == nil {
		if t, ok := e.thresholds[stage]; ok {
			query.SimilarityThreshold = &t
		}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	key := e.cacheKey(query)
	if resp, ok := e.cached(ctx, key); ok {
		resp.QueryTime = time.Since(start).Milliseconds()
		return resp, nil
	}

	matches, err := e.index.Search(ctx, query.Query, query.Stage, query.MaxResults, query.Threshold(), query.Filters)
	if err != nil {
		e.logger.Warn("Search failed",
			zap.String("query", query.Query),
			zap.String("stage", string(query.Stage)),
			zap.Error(err))
		return nil, err
	}

	resp := &models.SearchResponse{
		Query:   query.Query,
		Stage:   query.Stage,
		Results: make([]*models.SearchResult, 0, len(matches)),
		Total:   len(matches),
	}
	for i, m := range matches {
		resp.Results = append(resp.Results, &models.SearchResult{
			Product:       m.Product,
			Score:         m.Score,
			SemanticScore: m.SemanticScore,
			LexicalScore:  m.LexicalScore,
			Rank:          i + 1,
		})
	}
	if len(resp.Results) == 0 {
		resp.NoRelevantInformation = true
		resp.Message = models.NoRelevantInformationMessage
	}
	resp.QueryTime = time.Since(start).Milliseconds()

	e.logger.Debug("Product matching",
		zap.String("query", query.Query),
		zap.String("stage", string(query.Stage)),
		zap.Int("results", len(resp.Results)),
		zap.Float64("mean_score", resp.MeanScore()),
		zap.Int64("latency_ms", resp.QueryTime))

	e.store(ctx, key, resp)
	return resp, nil
}

// cacheKey identifies a validated query against the current index size, so
// entries from before an ingestion are never served after it.
func (e *Engine) cacheKey(query *models.SearchQuery) string {
	raw, _ := json.Marshal(query)
	h := sha256.New()
	h.Write(raw)
	h.Write([]byte(strconv.Itoa(e.index.Stats().DocumentCount)))
	return cache.SearchPrefix + cache.Key(string(query.Stage), hex.EncodeToString(h.Sum(nil))[:32])
}

func (e *Engine) cached(ctx context.Context, key string) (*models.SearchResponse, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		e.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = e.cache.Delete(ctx, key)
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (e *Engine) store(ctx context.Context, key string, resp *models.SearchResponse) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.ttl); err != nil {
		e.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
