package config

// Defaults for the RAG options.
const (
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultRetrievalK       = 4
	DefaultMaxContextLength = 8000
	DefaultEmbedConcurrency = 4
	DefaultHistoryTurns     = 6

	PolicyDegrade = "degrade"
	PolicyFail    = "fail"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 120
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
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
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "static"
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	ApplyRAGDefaults(&cfg.RAG)
	if cfg.Ingest.TimeoutSeconds == 0 {
		cfg.Ingest.TimeoutSeconds = 600
	}
	if cfg.Limits.Burst == 0 {
		cfg.Limits.Burst = 1
	}
	if cfg.Limits.MaxRetries == 0 {
		cfg.Limits.MaxRetries = 3
	}
	if cfg.Limits.BaseDelayMillis == 0 {
		cfg.Limits.BaseDelayMillis = 200
	}
	if cfg.Limits.MaxDelayMillis == 0 {
		cfg.Limits.MaxDelayMillis = 5000
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// ApplyRAGDefaults fills zero RAG values. A zero chunk_overlap is kept when chunk_size is
// set, so a config can ask for non-overlapping chunks.
func ApplyRAGDefaults(r *RAGConfig) {
	if r.ChunkSize == 0 {
		r.ChunkSize = DefaultChunkSize
		if r.ChunkOverlap == 0 {
			r.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if r.RetrievalK == 0 {
		r.RetrievalK = DefaultRetrievalK
	}
	if r.MaxContextLength == 0 {
		r.MaxContextLength = DefaultMaxContextLength
	}
	if r.EmbedConcurrency == 0 {
		r.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if r.HistoryTurns == 0 {
		r.HistoryTurns = DefaultHistoryTurns
	}
	if r.EmptyContextPolicy == "" {
		r.EmptyContextPolicy = PolicyDegrade
	}
}
