// Package service is the boundary used by the HTTP server, the CLI and the inbox watcher.
// It validates requests and drives the registry, the ingestion pipeline and the chat
// pipeline.
package service

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kiku/internal/chat"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/keyword"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/storage"
	"go.uber.org/zap"
)

// PDFContentType is the only accepted upload media type.
const PDFContentType = "application/pdf"

// DefaultPassageLimit caps SearchPassages when the caller passes no limit.
const DefaultPassageLimit = 10

// UploadInput is one uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Status summarizes the service for health and status endpoints.
type Status struct {
	Documents      int                          `json:"documents"`
	States         map[models.DocumentState]int `json:"states"`
	BlobBytes      int64                        `json:"blob_bytes"`
	DiskUsageBytes int64                        `json:"disk_usage_bytes,omitempty"`
	Embedder       string                       `json:"embedder,omitempty"`
	Generator      string                       `json:"generator,omitempty"`
	AsyncIngest    bool                         `json:"async_ingest"`
}

// Service wires the pipelines together.
type Service struct {
	registry      *registry.Registry
	indexer       *indexer.Indexer
	chat          *chat.Pipeline
	async         bool
	ingestTimeout time.Duration
	embedder      string
	generator     string
	blobPath      string
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for service events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProviders records the embedder and generator names reported by Status.
func WithProviders(embedder, generator string) Option {
	return func(s *Service) {
		s.embedder = embedder
		s.generator = generator
	}
}

// WithBlobDatabase reports the disk usage of the SQLite blob store at path in Status.
func WithBlobDatabase(path string) Option {
	return func(s *Service) { s.blobPath = path }
}

// New returns a service. With cfg.Async, uploads return at once and ingestion runs in the
// background with cfg.TimeoutSeconds as its deadline.
func New(reg *registry.Registry, idx *indexer.Indexer, pipeline *chat.Pipeline, cfg config.IngestConfig, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		registry:      reg,
		indexer:       idx,
		chat:          pipeline,
		async:         cfg.Async,
		ingestTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:        zap.NewNop(),
		ctx:           ctx,
		cancel:        cancel,
	}
	if s.ingestTimeout <= 0 {
		s.ingestTimeout = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	reg.OnDelete(pipeline.History().Clear)
	return s
}

// Upload registers a PDF and ingests it. In synchronous mode the returned error is the
// ingestion error, alongside the failed document. After Close it fails with
// registry.ErrClosed.
func (s *Service) Upload(ctx context.Context, in UploadInput) (models.Document, error) {
	if err := checkContentType(in.ContentType); err != nil {
		return models.Document{}, err
	}
	if s.isClosed() {
		return models.Document{}, registry.ErrClosed
	}
	doc, err := s.registry.Register(ctx, in.Filename, in.Content)
	if err != nil {
		return models.Document{}, err
	}
	s.logger.Info("document uploaded",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int64("size", doc.Size))

	if s.async {
		if !s.startIngest(doc.ID) {
			_ = s.registry.Delete(context.WithoutCancel(ctx), doc.ID)
			return models.Document{}, registry.ErrClosed
		}
		return doc, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.ingestTimeout)
	defer cancel()
	return s.indexer.Ingest(ctx, doc.ID)
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// startIngest launches a background ingestion unless Close has begun.
func (s *Service) startIngest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go s.ingestDetached(id)
	return true
}

func (s *Service) ingestDetached(id string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, s.ingestTimeout)
	defer cancel()
	if _, err := s.indexer.Ingest(ctx, id); err != nil {
		s.logger.Warn("background ingestion failed", zap.String("doc_id", id), zap.Error(err))
	}
}

func checkContentType(ct string) error {
	if strings.TrimSpace(ct) == "" {
		return fmt.Errorf("%w: missing content type, expected %s", models.ErrInvalidInput, PDFContentType)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return fmt.Errorf("%w: malformed content type %q", models.ErrInvalidInput, ct)
	}
	if mediaType != PDFContentType {
		return fmt.Errorf("%w: content type %s is not %s", models.ErrInvalidInput, mediaType, PDFContentType)
	}
	return nil
}

// Fetch returns the uploaded bytes verbatim.
func (s *Service) Fetch(ctx context.Context, id string) ([]byte, error) {
	return s.registry.Raw(ctx, id)
}

// Get returns document metadata.
func (s *Service) Get(id string) (models.Document, error) {
	return s.registry.Get(id)
}

// List returns every document, oldest first.
func (s *Service) List() []models.Document {
	return s.registry.List()
}

// Delete removes a document and everything derived from it, including its chat history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("document deleted", zap.String("doc_id", id))
	return nil
}

// Chat answers question about document id. A failed turn is returned with its error.
func (s *Service) Chat(ctx context.Context, id, question string) (*models.ChatTurn, error) {
	return s.chat.Answer(ctx, id, question)
}

// History returns the document's chat turns, oldest first.
func (s *Service) History(id string) ([]*models.ChatTurn, error) {
	if _, err := s.registry.Get(id); err != nil {
		return nil, err
	}
	return s.chat.History().Turns(id), nil
}

// SearchPassages runs a keyword search over the chunks of a ready document.
func (s *Service) SearchPassages(ctx context.Context, id, query string, limit int) ([]keyword.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultPassageLimit
	}
	art, err := s.registry.Index(id)
	if err != nil {
		return nil, err
	}
	return art.Passages.Search(ctx, query, limit, &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: 1, PhraseBoost: 1.5})
}

// Status reports document counts and storage usage.
func (s *Service) Status(ctx context.Context) (Status, error) {
	blobBytes, err := s.registry.BlobBytes(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to measure blob store: %w", err)
	}
	st := Status{
		Documents:   s.registry.Count(),
		States:      s.registry.CountByState(),
		BlobBytes:   blobBytes,
		Embedder:    s.embedder,
		Generator:   s.generator,
		AsyncIngest: s.async,
	}
	if s.blobPath != "" {
		if n, err := storage.DiskUsageBytes(storage.SQLiteFiles(s.blobPath)...); err == nil {
			st.DiskUsageBytes = n
		}
	}
	return st, nil
}

// Close cancels background ingestions and waits for them to finish. It does not close
// the registry. Later uploads fail with registry.ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
