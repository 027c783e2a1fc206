// Package config loads ctxpack configuration from environment variables,
// a YAML/JSON file, and defaults, with precedence env > file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the top-level configuration object.
type Config struct {
	Home          string              `json:"home" yaml:"home"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Materializer  MaterializerConfig  `json:"materializer" yaml:"materializer"`
	Indexer       IndexerConfig       `json:"indexer" yaml:"indexer"`
	Embedding     EmbeddingConfig     `json:"embedding" yaml:"embedding"`
	Search        SearchConfig        `json:"search" yaml:"search"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ServerConfig binds only the metrics endpoint; routing/auth are out of scope.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

type MaterializerConfig struct {
	ReposRoot     string `json:"repos_root" yaml:"repos_root"`
	CloneTimeoutS int    `json:"clone_timeout_seconds" yaml:"clone_timeout_seconds"`
	DefaultBranch string `json:"default_branch" yaml:"default_branch"`
}

type IndexerConfig struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	ChunkSize        int   `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap     int   `json:"chunk_overlap" yaml:"chunk_overlap"`
	EmbedBatchSize   int   `json:"embed_batch_size" yaml:"embed_batch_size"`
}

type EmbeddingConfig struct {
	Provider   string                 `json:"provider" yaml:"provider"`
	Model      string                 `json:"model" yaml:"model"`
	Dimensions int                    `json:"dimensions" yaml:"dimensions"`
	Config     map[string]interface{} `json:"config" yaml:"config"`
}

type SearchConfig struct {
	DefaultAlpha     float64 `json:"default_alpha" yaml:"default_alpha"`
	DefaultTopK      int     `json:"default_top_k" yaml:"default_top_k"`
	SubtrackTimeoutS int     `json:"subtrack_timeout_seconds" yaml:"subtrack_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Default returns the built-in defaults, rooted at the user's home directory.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	ctxpackHome := filepath.Join(home, ".ctxpack")

	return Config{
		Home: ctxpackHome,
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(ctxpackHome, "data", "ctxpack.db"),
		},
		Materializer: MaterializerConfig{
			ReposRoot:     filepath.Join(ctxpackHome, "repos"),
			CloneTimeoutS: 120,
			DefaultBranch: "main",
		},
		Indexer: IndexerConfig{
			MaxFileSizeBytes: 1 << 20, // 1 MiB
			ChunkSize:        1500,
			ChunkOverlap:     150,
			EmbedBatchSize:   100,
		},
		Embedding: EmbeddingConfig{
			Provider:   "mock",
			Model:      "ctxpack-embed-v1",
			Dimensions: 1536,
			Config:     map[string]interface{}{},
		},
		Search: SearchConfig{
			DefaultAlpha:     0.5,
			DefaultTopK:      10,
			SubtrackTimeoutS: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Tracing: TracingConfig{Enabled: false},
			Sentry:  SentryConfig{Enabled: false},
		},
	}
}

// Load builds a Config starting from defaults, merging a YAML/JSON file when
// path is non-empty and exists, then applying environment variable
// overrides. Precedence: env > file > defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := mergeFile(&cfg, path); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// applyEnvOverrides applies CTXPACK_-prefixed environment variables on top
// of whatever defaults/file values are already present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTXPACK_HOME"); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv("CTXPACK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CTXPACK_MATERIALIZER_REPOS_ROOT"); v != "" {
		cfg.Materializer.ReposRoot = v
	}
	if v := os.Getenv("CTXPACK_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("CTXPACK_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("CTXPACK_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("CTXPACK_SEARCH_DEFAULT_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.DefaultAlpha = f
		}
	}
	if v := os.Getenv("CTXPACK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CTXPACK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CTXPACK_SENTRY_DSN"); v != "" {
		cfg.Observability.Sentry.DSN = v
		cfg.Observability.Sentry.Enabled = true
	}
	if v := os.Getenv("CTXPACK_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}

// EnsureHomeLayout creates the configured home directory and its standard
// subdirectories (repos/, data/, logs/, sandbox/) if missing.
func EnsureHomeLayout(cfg Config) error {
	dirs := []string{
		cfg.Home,
		filepath.Join(cfg.Home, "repos"),
		filepath.Join(cfg.Home, "data"),
		filepath.Join(cfg.Home, "logs"),
		filepath.Join(cfg.Home, "sandbox"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
