package main

import (
	"fmt"

	"github.com/hyperjump/kiku/internal/chat"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/extract"
	"github.com/hyperjump/kiku/internal/generation"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/retrieval"
	"github.com/hyperjump/kiku/internal/service"
	"github.com/hyperjump/kiku/internal/storage"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Registry  *registry.Registry
	Embedder  embedding.Embedder
	Generator generation.Generator
	Service   *service.Service
}

// Close stops background ingestion before releasing the registry and providers.
func (c *Components) Close() {
	if c.Service != nil {
		c.Service.Close()
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
}

func openBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.BlobDatabasePath == "" {
		return storage.NewMemoryBlobStore(), nil
	}
	store, err := storage.NewSQLiteBlobStore(cfg.Storage.BlobDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	return store, nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	embedder, err := embedding.New(cfg.Embedding, cfg.Limits, logger)
	if err == nil {
		return embedder, nil
	}
	// A missing ONNX model or runtime falls back to the mock embedder so the server still starts.
	if cfg.Embedding.Provider == "onnx" {
		logger.Warn("onnx embedder unavailable, falling back to mock",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	}
	return nil, fmt.Errorf("failed to initialize embedder: %w", err)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	blobs, err := openBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	c.Registry = registry.New(blobs, registry.WithLogger(logger))

	if c.Embedder, err = newEmbedder(cfg, logger); err != nil {
		return nil, err
	}
	if c.Generator, err = generation.New(cfg.Generation, cfg.Limits, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	idxOpts := []indexer.IndexerOption{}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	idx, err := indexer.NewIndexer(c.Registry, extract.NewExtractor(), c.Embedder, cfg.RAG, idxOpts...)
	if err != nil {
		return nil, err
	}
	engine, err := retrieval.NewEngine(c.Registry, c.Embedder, cfg.RAG, retrieval.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	pipeline, err := chat.NewPipeline(engine, c.Generator, chat.NewHistory(0), cfg.RAG, chat.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	c.Service = service.New(c.Registry, idx, pipeline, cfg.Ingest,
		service.WithLogger(logger),
		service.WithProviders(c.Embedder.Name(), c.Generator.Name()),
		service.WithBlobDatabase(cfg.Storage.BlobDatabasePath),
	)
	logger.Info("components ready",
		zap.String("embedder", c.Embedder.Name()),
		zap.String("generator", c.Generator.Name()),
		zap.Bool("async_ingest", cfg.Ingest.Async),
		zap.Bool("persistent_blobs", cfg.Storage.BlobDatabasePath != ""),
	)
	ok = true
	return c, nil
}
