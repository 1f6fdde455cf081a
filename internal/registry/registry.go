// Package registry owns every uploaded document and its derived artifacts (raw bytes,
// chunks, vector index, passage index), keyed by document id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/keyword"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
	"go.uber.org/zap"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("registry closed")

// Artifacts are the products of a successful ingestion, published together with the
// ready state.
type Artifacts struct {
	Index     vector.Searcher
	Chunks    []*models.Chunk
	Passages  *keyword.PassageIndex
	Embedder  string // name of the embedder that produced Index
	PageCount int
}

// entry is never modified after it is stored; every mutation stores a new one.
type entry struct {
	doc       models.Document
	artifacts *Artifacts
	failure   error
}

// Registry is the single shared mutable structure of the service. All mutations take one
// mutex and swap the entry for a document, so a reader sees a document's state and its
// artifacts from the same moment.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	blobs    storage.BlobStore
	onDelete []func(id string)
	closed   bool
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns an empty registry storing raw bytes in blobs. The registry takes ownership
// of blobs and closes it in Close.
func New(blobs storage.BlobStore, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		blobs:   blobs,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDelete registers fn to run, outside the lock, after a document is deleted.
func (r *Registry) OnDelete(fn func(id string)) {
	r.mu.Lock()
	r.onDelete = append(r.onDelete, fn)
	r.mu.Unlock()
}

// Register stores content under a fresh id and records the document in state uploaded.
func (r *Registry) Register(ctx context.Context, filename string, content []byte) (models.Document, error) {
	id := uuid.NewString()
	now := r.now()
	doc := models.Document{
		ID:        id,
		Filename:  filename,
		Size:      int64(len(content)),
		Checksum:  fileid.Checksum(content),
		State:     models.StateUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.Document{}, ErrClosed
	}
	if err := r.blobs.Put(ctx, id, content); err != nil {
		return models.Document{}, fmt.Errorf("failed to store upload: %w", err)
	}
	r.entries[id] = &entry{doc: doc}
	r.logger.Debug("document registered",
		zap.String("doc_id", id),
		zap.String("filename", filename),
		zap.Int64("size", doc.Size))
	return doc, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return e, nil
}

// Get returns the document's current metadata.
func (r *Registry) Get(id string) (models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return models.Document{}, err
	}
	return e.doc, nil
}

// Raw returns the uploaded bytes verbatim.
func (r *Registry) Raw(ctx context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	_, err := r.lookup(id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	data, err := r.blobs.Get(ctx, id)
	if errors.Is(err, storage.ErrBlobNotFound) {
		// Deleted between the lookup and the read.
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return data, err
}

// Claim moves the document from uploaded to extracting. It returns false, with no error,
// when the document is in any other state, so only one caller ever ingests a document.
func (r *Registry) Claim(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	if e.doc.State != models.StateUploaded {
		return false, nil
	}
	r.store(e, models.StateExtracting, nil, nil)
	return true, nil
}

// Advance moves a claimed document to indexing. Ready and failed are reached only through
// MarkReady and MarkFailed.
func (r *Registry) Advance(id string, state models.DocumentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if state != models.StateIndexing || e.doc.State != models.StateExtracting {
		return fmt.Errorf("document %s: invalid transition %s -> %s", id, e.doc.State, state)
	}
	r.store(e, state, nil, nil)
	return nil
}

// MarkReady publishes artifacts and the ready state together.
func (r *Registry) MarkReady(id string, a Artifacts) error {
	if a.Index == nil || a.Index.Size() == 0 || len(a.Chunks) == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrEmptyIndex)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if e.doc.State.Terminal() || e.doc.State == models.StateUploaded {
		return fmt.Errorf("document %s: invalid transition %s -> %s", id, e.doc.State, models.StateReady)
	}
	r.store(e, models.StateReady, &a, nil)
	return nil
}

// MarkFailed records cause on the document and moves it to the terminal failed state.
func (r *Registry) MarkFailed(id string, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if e.doc.State.Terminal() {
		return fmt.Errorf("document %s: invalid transition %s -> %s", id, e.doc.State, models.StateFailed)
	}
	r.store(e, models.StateFailed, nil, cause)
	return nil
}

// store replaces e with a copy in the given state. Caller holds r.mu.
func (r *Registry) store(e *entry, state models.DocumentState, a *Artifacts, failure error) {
	next := &entry{doc: e.doc, artifacts: a, failure: failure}
	next.doc.State = state
	next.doc.UpdatedAt = r.now()
	if a != nil {
		next.doc.ChunkCount = len(a.Chunks)
		next.doc.PageCount = a.PageCount
	}
	if failure != nil {
		next.doc.FailureKind = models.KindOf(failure)
		next.doc.FailureReason = failure.Error()
	}
	r.entries[e.doc.ID] = next
	r.logger.Debug("document state",
		zap.String("doc_id", e.doc.ID),
		zap.String("state", string(state)))
}

// Failure returns the error recorded by MarkFailed, or nil.
func (r *Registry) Failure(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.failure
	}
	return nil
}

// Index returns the artifacts of a ready document. Any other state yields
// models.ErrNotReady; a failed document's error names the recorded failure kind.
func (r *Registry) Index(id string) (*Artifacts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	switch e.doc.State {
	case models.StateReady:
		return e.artifacts, nil
	case models.StateFailed:
		return nil, fmt.Errorf("document %s failed ingestion (%s): %w", id, e.doc.FailureKind, models.ErrNotReady)
	default:
		return nil, fmt.Errorf("document %s is %s: %w", id, e.doc.State, models.ErrNotReady)
	}
}

// Delete removes the document, its blob and its artifacts. Later lookups fail with
// models.ErrNotFound. An ingestion still running for the document fails at MarkReady.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, err := r.lookup(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	delete(r.entries, id)
	blobErr := r.blobs.Delete(ctx, id)
	hooks := append([]func(string){}, r.onDelete...)
	r.mu.Unlock()

	if e.artifacts != nil && e.artifacts.Passages != nil {
		_ = e.artifacts.Passages.Close()
	}
	for _, fn := range hooks {
		fn(id)
	}
	r.logger.Debug("document deleted", zap.String("doc_id", id))
	if blobErr != nil {
		return fmt.Errorf("document %s removed but blob delete failed: %w", id, blobErr)
	}
	return nil
}

// List returns all documents, oldest first.
func (r *Registry) List() []models.Document {
	r.mu.Lock()
	docs := make([]models.Document, 0, len(r.entries))
	for _, e := range r.entries {
		docs = append(docs, e.doc)
	}
	r.mu.Unlock()
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Count returns the number of documents.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CountByState returns the number of documents in each state.
func (r *Registry) CountByState() map[models.DocumentState]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.DocumentState]int)
	for _, e := range r.entries {
		counts[e.doc.State]++
	}
	return counts
}

// BlobBytes returns the total size of stored uploads.
func (r *Registry) BlobBytes(ctx context.Context) (int64, error) {
	return r.blobs.Size(ctx)
}

// Close drops every document and closes the blob store. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		if e.artifacts != nil && e.artifacts.Passages != nil {
			_ = e.artifacts.Passages.Close()
		}
	}
	return r.blobs.Close()
}
