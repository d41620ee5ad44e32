package config

import "time"

// DefaultPath is where the binaries look for a config file.
const DefaultPath = "~/.shohin/config.yaml"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.Burst == 0 {
		cfg.Server.Burst = int(cfg.Server.RateLimit) + 1
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".shohin/data/shohin.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".shohin/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.ModelID == "" && cfg.Embedding.Provider == ProviderRemote {
		cfg.Embedding.ModelID = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Matching.DefaultMaxResults == 0 {
		cfg.Matching.DefaultMaxResults = 10
	}
	if cfg.Matching.MaxResultsCap == 0 {
		cfg.Matching.MaxResultsCap = 100
	}
	if cfg.Matching.DefaultSimilarityThreshold == 0 {
		cfg.Matching.DefaultSimilarityThreshold = 0.7
	}
	if cfg.Matching.BrandThreshold == 0 {
		cfg.Matching.BrandThreshold = 0.8
	}
	if cfg.Matching.ReferenceThreshold == 0 {
		cfg.Matching.ReferenceThreshold = 0.85
	}
	if cfg.Matching.CharacteristicThreshold == 0 {
		cfg.Matching.CharacteristicThreshold = 0.8
	}
	if cfg.Ingest.MaxFileSizeMB == 0 {
		cfg.Ingest.MaxFileSizeMB = 50
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1000
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
