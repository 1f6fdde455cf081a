// Package config provides configuration loading and structs for the kiku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	RAG        RAGConfig        `yaml:"rag"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig selects where raw uploaded bytes live. An empty BlobDatabasePath keeps
// them in memory.
type StorageConfig struct {
	BlobDatabasePath string `yaml:"blob_database_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // mock, onnx, openai, gemini, ollama
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Dimensions     int    `yaml:"dimensions"`
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	Provider       string  `yaml:"provider"` // static, openai, gemini, ollama
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// RAGConfig holds chunking and retrieval parameters consumed by the pipelines.
type RAGConfig struct {
	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	RetrievalK         int     `yaml:"retrieval_k"`
	MaxContextLength   int     `yaml:"max_context_length"`
	EmbedConcurrency   int     `yaml:"embed_concurrency"`
	HistoryTurns       int     `yaml:"history_turns"`
	EmptyContextPolicy string  `yaml:"empty_context_policy"` // degrade or fail
	KeywordWeight      float64 `yaml:"keyword_weight"`       // 0 disables keyword reranking
}

// IngestConfig controls whether uploads wait for ingestion.
type IngestConfig struct {
	Async          bool `yaml:"async"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

// WatchConfig holds inbox directory settings. PDFs created under these directories are uploaded.
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

// LimitsConfig holds client-side throttling and retry for external providers.
type LimitsConfig struct {
	EmbedRPS        float64 `yaml:"embed_rps"`
	GenerateRPS     float64 `yaml:"generate_rps"`
	Burst           int     `yaml:"burst"`
	MaxRetries      int     `yaml:"max_retries"`
	BaseDelayMillis int     `yaml:"base_delay_ms"`
	MaxDelayMillis  int     `yaml:"max_delay_ms"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
// Returns an error if the file cannot be read or parsed, or if a value is out of range.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.Storage.BlobDatabasePath != "" {
		cfg.Storage.BlobDatabasePath = expandPath(cfg.Storage.BlobDatabasePath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
