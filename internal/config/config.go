// Package config provides configuration loading and structs for the shohin server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHOHIN_"

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderRemote = "remote"
	ProviderMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Matching   MatchingConfig   `yaml:"matching"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig holds HTTP server settings. RateLimit is requests per second
// per client; zero disables limiting.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// StorageConfig holds the metadata database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	ModelPath  string        `yaml:"model_path"`
	ModelID    string        `yaml:"model_id"`
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ExtractionConfig holds product extraction settings.
type ExtractionConfig struct {
	Workers      int    `yaml:"workers"`
	PatternsPath string `yaml:"patterns_path"`
}

// MatchingConfig holds search defaults. CharacteristicThreshold is
// informational: characteristic matching always uses 0.8.
type MatchingConfig struct {
	DefaultMaxResults          int     `yaml:"default_max_results"`
	MaxResultsCap              int     `yaml:"max_results_cap"`
	DefaultSimilarityThreshold float64 `yaml:"default_similarity_threshold"`
	BrandThreshold             float64 `yaml:"brand_threshold"`
	ReferenceThreshold         float64 `yaml:"reference_threshold"`
	CharacteristicThreshold    float64 `yaml:"characteristic_threshold"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	Workers       int      `yaml:"workers"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	Extensions    []string `yaml:"extensions"`
}

// MaxFileSize returns the size limit in bytes.
func (c *IngestConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// CacheConfig holds search result cache settings. An empty RedisAddr
// selects the in-process cache.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	Size          int           `yaml:"size"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths. A missing file yields the
// defaults. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Extraction.PatternsPath != "" {
		cfg.Extraction.PatternsPath = expandPath(cfg.Extraction.PatternsPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderRemote, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == ProviderRemote && c.Embedding.URL == "" {
		return errors.New("embedding.url is required for the remote provider")
	}
	for name, t := range map[string]float64{
		"default_similarity_threshold": c.Matching.DefaultSimilarityThreshold,
		"brand_threshold":              c.Matching.BrandThreshold,
		"reference_threshold":          c.Matching.ReferenceThreshold,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("matching.%s must be within [0, 1], got %v", name, t)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides replaces settings with SHOHIN_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("SERVER_HOST", &cfg.Server.Host)
	str("DATABASE_PATH", &cfg.Storage.DatabasePath)
	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("EMBEDDING_MODEL_PATH", &cfg.Embedding.ModelPath)
	str("EMBEDDING_MODEL", &cfg.Embedding.ModelID)
	str("EMBEDDING_URL", &cfg.Embedding.URL)
	str("EMBEDDING_TOKEN", &cfg.Embedding.Token)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	ints := map[string]*int{
		"SERVER_PORT":          &cfg.Server.Port,
		"EMBEDDING_DIMENSIONS": &cfg.Embedding.Dimensions,
		"REDIS_DB":             &cfg.Cache.RedisDB,
		"INGEST_WORKERS":       &cfg.Ingest.Workers,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = b
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
