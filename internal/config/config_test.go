package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
  rate_limit: 5
storage:
  database_path: "test.db"
embedding:
  provider: mock
  timeout: 5s
matching:
  brand_threshold: 0.6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Burst != 6 {
		t.Errorf("burst = %d, want 6", cfg.Server.Burst)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("embedding timeout = %v", cfg.Embedding.Timeout)
	}
	if cfg.Matching.BrandThreshold != 0.6 || cfg.Matching.ReferenceThreshold != 0.85 {
		t.Errorf("unexpected matching config: %+v", cfg.Matching)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Embedding.Provider != ProviderONNX {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := map[string]string{
		"yaml":      "server: [",
		"provider":  "embedding:\n  provider: word2vec\n",
		"remote":    "embedding:\n  provider: remote\n",
		"threshold": "matching:\n  brand_threshold: 1.5\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("SHOHIN_SERVER_PORT", "9191")
	t.Setenv("SHOHIN_EMBEDDING_PROVIDER", "remote")
	t.Setenv("SHOHIN_EMBEDDING_URL", "http://localhost:11434/v1")
	t.Setenv("SHOHIN_REDIS_ADDR", "localhost:6379")
	t.Setenv("SHOHIN_DEBUG", "true")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != ProviderRemote || cfg.Embedding.ModelID != "nomic-embed-text" {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Cache.RedisAddr)
	}
	if !cfg.Debug {
		t.Error("debug should be set from the environment")
	}

	t.Setenv("SHOHIN_SERVER_PORT", "eighty")
	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Error("expected error for a non-numeric port")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/shohin.db"
watch:
  directories: ["./catalogs"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "shohin.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "catalogs")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestExpandPath_home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.shohin/x.db", "/etc"); got != filepath.Join(home, ".shohin", "x.db") {
		t.Errorf("expandPath = %s", got)
	}
	if got := expandPath("/abs/x.db", "/etc"); got != "/abs/x.db" {
		t.Errorf("expandPath = %s", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.Burst != 0 {
		t.Errorf("burst without rate limit: got %d", cfg.Server.Burst)
	}
	if cfg.Matching.DefaultMaxResults != 10 || cfg.Matching.MaxResultsCap != 100 {
		t.Errorf("default result limits: got %+v", cfg.Matching)
	}
	if cfg.Matching.DefaultSimilarityThreshold != 0.7 {
		t.Errorf("default threshold: got %f", cfg.Matching.DefaultSimilarityThreshold)
	}
	if cfg.Matching.CharacteristicThreshold != 0.8 {
		t.Errorf("characteristic threshold: got %f", cfg.Matching.CharacteristicThreshold)
	}
	if cfg.Ingest.MaxFileSize() != 50<<20 {
		t.Errorf("max file size: got %d", cfg.Ingest.MaxFileSize())
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("embedding timeout: got %v", cfg.Embedding.Timeout)
	}
	if cfg.Cache.TTL != time.Hour || cfg.Cache.Size != 1000 {
		t.Errorf("cache defaults: got %+v", cfg.Cache)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Storage:   StorageConfig{DatabasePath: "/tmp/db"},
		Embedding: EmbeddingConfig{Provider: ProviderMock},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Embedding.Provider != ProviderMock {
		t.Errorf("loaded provider: got %s", loaded.Embedding.Provider)
	}
}
