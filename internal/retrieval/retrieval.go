// Package retrieval finds the chunks of a document most similar to a question and packs
// them into a bounded context.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/vector"
	"go.uber.org/zap"
)

// Engine answers top-k similarity queries against ready documents.
type Engine struct {
	registry *registry.Registry
	embedder embedding.Embedder
	k        int
	// keywordWeight > 0 reranks vector candidates with the passage index.
	keywordWeight float64
	logger        *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an engine that embeds questions with embedder, which must be the
// embedder documents were ingested with. cfg.RetrievalK is the default k and
// cfg.KeywordWeight turns on keyword reranking.
func NewEngine(reg *registry.Registry, embedder embedding.Embedder, cfg config.RAGConfig, opts ...Option) (*Engine, error) {
	if cfg.RetrievalK < 1 {
		return nil, fmt.Errorf("%w: retrieval k %d must be positive", models.ErrInvalidConfiguration, cfg.RetrievalK)
	}
	if cfg.KeywordWeight < 0 || cfg.KeywordWeight > 1 {
		return nil, fmt.Errorf("%w: keyword weight %g must be within 0..1", models.ErrInvalidConfiguration, cfg.KeywordWeight)
	}
	e := &Engine{
		registry:      reg,
		embedder:      embedder,
		k:             cfg.RetrievalK,
		keywordWeight: cfg.KeywordWeight,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Retrieve returns up to k chunks of document id ranked by similarity to question
// (k <= 0 uses the configured default). Fails with models.ErrNotFound for an unknown id
// and models.ErrNotReady unless the document is ready.
func (e *Engine) Retrieve(ctx context.Context, id, question string, k int) ([]*models.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidInput)
	}
	if k <= 0 {
		k = e.k
	}
	art, err := e.registry.Index(id)
	if err != nil {
		return nil, err
	}
	if art.Embedder != e.embedder.Name() {
		return nil, fmt.Errorf("%w: document %s was indexed with %s, questions are embedded with %s",
			models.ErrEmbeddingProvider, id, art.Embedder, e.embedder.Name())
	}
	q, err := e.embedder.Embed(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to embed question: %w", models.ErrEmbeddingProvider, err)
	}
	hybrid := e.keywordWeight > 0 && art.Passages != nil
	pool := k
	if hybrid {
		pool = k * candidateFactor
	}
	hits, err := art.Index.Query(q, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to query document %s: %w", id, err)
	}
	if hybrid {
		hits = e.rerank(ctx, art, question, hits, k)
	}
	out := make([]*models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.ChunkIndex < 0 || h.ChunkIndex >= len(art.Chunks) {
			continue
		}
		out = append(out, &models.ScoredChunk{Chunk: art.Chunks[h.ChunkIndex], Score: h.Score})
	}
	e.logger.Debug("retrieved chunks",
		zap.String("doc_id", id),
		zap.Int("k", k),
		zap.Bool("hybrid", hybrid),
		zap.Int("chunks", len(out)))
	return out, nil
}

// rerank fuses the vector candidates with keyword hits from the passage index and keeps
// the best k. Keyword-only hits can enter the result. A failed keyword search keeps the
// vector order.
func (e *Engine) rerank(ctx context.Context, art *registry.Artifacts, question string, hits []vector.Hit, k int) []vector.Hit {
	passages, err := art.Passages.Search(ctx, question, len(hits), nil)
	if err != nil {
		e.logger.Debug("keyword rerank skipped", zap.Error(err))
		return hits[:min(k, len(hits))]
	}
	fused := fuse(normalizeKeywordScores(passages), semanticScores(hits), e.keywordWeight, 1-e.keywordWeight)
	out := make([]vector.Hit, 0, min(k, len(fused)))
	for _, f := range fused[:min(k, len(fused))] {
		out = append(out, vector.Hit{ChunkIndex: f.ChunkIndex, Score: f.Score})
	}
	return out
}
