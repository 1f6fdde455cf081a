package config

import (
	"fmt"

	"github.com/hyperjump/kiku/internal/models"
)

// Validate checks every numeric option against its documented range. Errors wrap
// models.ErrInvalidConfiguration so callers fail fast at construction time.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range 1..65535", models.ErrInvalidConfiguration, c.Server.Port)
	}
	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: server.max_upload_bytes must be positive", models.ErrInvalidConfiguration)
	}
	if c.Limits.EmbedRPS < 0 || c.Limits.GenerateRPS < 0 {
		return fmt.Errorf("%w: limits rps must not be negative", models.ErrInvalidConfiguration)
	}
	if c.Limits.MaxRetries < 0 || c.Limits.MaxRetries > 10 {
		return fmt.Errorf("%w: limits.max_retries %d out of range 0..10", models.ErrInvalidConfiguration, c.Limits.MaxRetries)
	}
	return c.RAG.Validate()
}

// Validate checks the RAG options.
func (r *RAGConfig) Validate() error {
	if err := inRange("rag.chunk_size", r.ChunkSize, 1, 100000); err != nil {
		return err
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("%w: rag.chunk_overlap %d must satisfy 0 <= overlap < chunk_size (%d)",
			models.ErrInvalidConfiguration, r.ChunkOverlap, r.ChunkSize)
	}
	if err := inRange("rag.retrieval_k", r.RetrievalK, 1, 100); err != nil {
		return err
	}
	if err := inRange("rag.max_context_length", r.MaxContextLength, 1, 1000000); err != nil {
		return err
	}
	if err := inRange("rag.embed_concurrency", r.EmbedConcurrency, 1, 64); err != nil {
		return err
	}
	if err := inRange("rag.history_turns", r.HistoryTurns, 0, 100); err != nil {
		return err
	}
	if r.KeywordWeight < 0 || r.KeywordWeight > 1 {
		return fmt.Errorf("%w: rag.keyword_weight %g must be within 0..1", models.ErrInvalidConfiguration, r.KeywordWeight)
	}
	if r.EmptyContextPolicy != PolicyDegrade && r.EmptyContextPolicy != PolicyFail {
		return fmt.Errorf("%w: rag.empty_context_policy %q must be %q or %q",
			models.ErrInvalidConfiguration, r.EmptyContextPolicy, PolicyDegrade, PolicyFail)
	}
	return nil
}

func inRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d out of range %d..%d", models.ErrInvalidConfiguration, name, v, lo, hi)
	}
	return nil
}
