package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/shohin/internal/cache"
	"github.com/hyperjump/shohin/internal/config"
	"github.com/hyperjump/shohin/internal/embedding"
	"github.com/hyperjump/shohin/internal/extraction"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/ingest"
	"github.com/hyperjump/shohin/internal/loader"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/patterns"
	"github.com/hyperjump/shohin/internal/search"
	"github.com/hyperjump/shohin/internal/storage"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Embedder  embedding.Embedder
	Index     *index.HybridIndex
	Cache     cache.Client
	Extractor *extraction.Extractor
	Pipeline  *ingest.Pipeline
	Engine    *search.Engine
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Extractor != nil {
		c.Extractor.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, pipelineOpts ...ingest.Option) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var err error
	if c.Storage, err = newStorage(cfg); err != nil {
		return nil, err
	}
	if c.Embedder, err = newEmbedder(cfg, logger); err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrIndexInit, err)
	}
	c.Index, err = index.New(ctx, c.Embedder,
		index.WithLogger(logger),
		index.WithTimeout(cfg.Embedding.Timeout))
	if err != nil {
		return nil, err
	}
	logger.Info("Hybrid index initialized",
		zap.String("embedding_model", c.Embedder.ModelID()),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	if c.Cache, err = newCache(cfg); err != nil {
		return nil, err
	}
	if c.Extractor, err = newExtractor(cfg, logger); err != nil {
		return nil, err
	}

	opts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithStorage(c.Storage),
		ingest.WithCache(c.Cache),
		ingest.WithMaxFileSize(cfg.Ingest.MaxFileSize()),
		ingest.WithExtensions(cfg.Ingest.Extensions),
		ingest.WithWorkers(cfg.Ingest.Workers),
	}
	c.Pipeline = ingest.New(newLoader(), c.Extractor, c.Index, append(opts, pipelineOpts...)...)

	c.Engine = search.NewEngine(c.Index,
		search.WithLogger(logger),
		search.WithCache(c.Cache, cfg.Cache.TTL),
		search.WithStageThreshold(models.StageBrand, cfg.Matching.BrandThreshold),
		search.WithStageThreshold(models.StageReference, cfg.Matching.ReferenceThreshold),
	)
	ok = true
	return c, nil
}

func newStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// newEmbedder builds the embedder selected by the config's provider.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case config.ProviderRemote:
		remote, err := embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			BaseURL:    e.URL,
			Model:      e.ModelID,
			Token:      e.Token,
			Dimensions: e.Dimensions,
			CacheSize:  e.CacheSize,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return remote, nil
	case config.ProviderMock:
		logger.Warn("Using mock embeddings; semantic scores carry no meaning")
		return embedding.NewMockEmbedder(e.Dimensions), nil
	default:
		onnx, err := embedding.NewONNXEmbedder(e.ModelPath, e.Dimensions, e.MaxTokens, e.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("onnx model %s: %w", e.ModelPath, err)
		}
		return onnx, nil
	}
}

// newCache returns a Redis cache when an address is configured and an
// in-process one otherwise.
func newCache(cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemoryClient(cfg.Cache.Size, cfg.Cache.TTL), nil
	}
	c, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		Prefix:   cache.DefaultPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return c, nil
}

// newExtractor builds an extractor over the configured pattern table, or the
// built-in one when none is set.
func newExtractor(cfg *config.Config, logger *zap.Logger) (*extraction.Extractor, error) {
	lib, err := loadPatterns(cfg.Extraction.PatternsPath)
	if err != nil {
		return nil, err
	}
	return extraction.New(lib,
		extraction.WithLogger(logger),
		extraction.WithWorkers(cfg.Extraction.Workers))
}

func loadPatterns(path string) (*patterns.Library, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern table: %w", err)
	}
	defer f.Close()
	return patterns.Load(f)
}

func newLoader() *loader.Loader {
	return loader.New()
}
