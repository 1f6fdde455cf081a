// Package indexer turns an uploaded PDF into a queryable document: extract, chunk,
// embed, build the vector and passage indexes, and publish them in the registry.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/keyword"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// embedBatchSize is the number of chunks sent per EmbedBatch call.
const embedBatchSize = 16

// PageExtractor extracts per-page text from PDF bytes.
type PageExtractor interface {
	ExtractPages(content []byte) ([]models.Page, error)
}

// Indexer runs the ingestion pipeline for documents held by a registry.
type Indexer struct {
	registry    *registry.Registry
	extractor   PageExtractor
	embedder    embedding.Embedder
	chunker     *Chunker
	concurrency int
	group       singleflight.Group
	logger      *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (document ingested, ingestion failed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. The chunking parameters in cfg are checked here so a
// bad configuration fails at construction rather than on the first upload.
func NewIndexer(
	reg *registry.Registry,
	extractor PageExtractor,
	embedder embedding.Embedder,
	cfg config.RAGConfig,
	opts ...IndexerOption,
) (*Indexer, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.EmbedConcurrency < 1 {
		return nil, fmt.Errorf("%w: embed concurrency %d must be positive", models.ErrInvalidConfiguration, cfg.EmbedConcurrency)
	}
	idx := &Indexer{
		registry:    reg,
		extractor:   extractor,
		embedder:    embedder,
		chunker:     chunker,
		concurrency: cfg.EmbedConcurrency,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Ingest brings document id to a terminal state and returns it. A document already ready
// is returned as is; an already failed one is returned with its recorded error. Concurrent
// calls for the same id share one run, and the registry claim guarantees the pipeline runs
// at most once per document. Cancelling ctx fails the document; it never becomes ready.
func (idx *Indexer) Ingest(ctx context.Context, id string) (models.Document, error) {
	doc, err := idx.registry.Get(id)
	if err != nil {
		return models.Document{}, err
	}
	if doc.State.Terminal() {
		return doc, idx.registry.Failure(id)
	}
	v, err, _ := idx.group.Do(id, func() (interface{}, error) {
		return idx.run(ctx, id)
	})
	if v == nil {
		return models.Document{}, err
	}
	return v.(models.Document), err
}

func (idx *Indexer) run(ctx context.Context, id string) (models.Document, error) {
	claimed, err := idx.registry.Claim(id)
	if err != nil {
		return models.Document{}, err
	}
	if !claimed {
		doc, err := idx.registry.Get(id)
		if err != nil {
			return models.Document{}, err
		}
		if doc.State.Terminal() {
			return doc, idx.registry.Failure(id)
		}
		return doc, fmt.Errorf("document %s is being ingested: %w", id, models.ErrNotReady)
	}

	start := time.Now()
	if idx.logger != nil {
		idx.logger.Debug("indexer ingesting document", zap.String("doc_id", id))
	}
	artifacts, err := idx.build(ctx, id)
	if err == nil {
		if err = idx.registry.MarkReady(id, *artifacts); err != nil && artifacts.Passages != nil {
			_ = artifacts.Passages.Close()
		}
	}
	if err != nil {
		return idx.fail(ctx, id, err)
	}

	doc, err := idx.registry.Get(id)
	if err != nil {
		return models.Document{}, err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document ready",
			zap.String("doc_id", id),
			zap.Int("pages", doc.PageCount),
			zap.Int("chunks", doc.ChunkCount),
			zap.Duration("duration", time.Since(start)))
	}
	return doc, nil
}

// fail records err on the document. A document deleted mid-ingestion has nothing to record.
func (idx *Indexer) fail(ctx context.Context, id string, err error) (models.Document, error) {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("ingestion canceled: %w (%v)", ctxErr, err)
	}
	if markErr := idx.registry.MarkFailed(id, err); markErr != nil {
		if errors.Is(markErr, models.ErrNotFound) {
			return models.Document{}, markErr
		}
		return models.Document{}, fmt.Errorf("%w (mark failed: %v)", err, markErr)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer ingestion failed",
			zap.String("doc_id", id),
			zap.String("kind", string(models.KindOf(err))),
			zap.Error(err))
	}
	doc, getErr := idx.registry.Get(id)
	if getErr != nil {
		return models.Document{}, getErr
	}
	return doc, err
}

func (idx *Indexer) build(ctx context.Context, id string) (*registry.Artifacts, error) {
	raw, err := idx.registry.Raw(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	pages, err := idx.extractor.ExtractPages(raw)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks := idx.chunker.Chunk(id, pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text to chunk", models.ErrUnreadableDocument)
	}
	if err := idx.registry.Advance(id, models.StateIndexing); err != nil {
		return nil, err
	}

	if err := idx.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}
	entries := make([]vector.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vector.Entry{ChunkIndex: ch.Index, Vector: ch.Embedding}
	}
	vi := vector.NewIndex(id)
	if err := vi.Build(entries); err != nil {
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}
	passages, err := keyword.BuildPassageIndex(id, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to index passages: %w", err)
	}
	return &registry.Artifacts{
		Index:     vi,
		Chunks:    chunks,
		Passages:  passages,
		Embedder:  idx.embedder.Name(),
		PageCount: len(pages),
	}, nil
}

// embedChunks fills chunk embeddings in batches, at most idx.concurrency in flight. The
// first failure cancels the remaining batches.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*models.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		batch := chunks[start:min(start+embedBatchSize, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, ch := range batch {
				texts[i] = ch.Content
			}
			vecs, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(batch))
			}
			for i, ch := range batch {
				ch.Embedding = vecs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to generate embeddings: %w", models.ErrEmbeddingProvider, err)
	}
	return nil
}
