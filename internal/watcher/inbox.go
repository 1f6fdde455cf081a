package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/service"
	"go.uber.org/zap"
)

// Uploader is the part of the service the inbox drives.
type Uploader interface {
	Upload(ctx context.Context, in service.UploadInput) (models.Document, error)
	Delete(ctx context.Context, id string) error
}

type inboxEntry struct {
	docID    string
	checksum string
}

// Inbox uploads PDFs found by a Watcher and deletes their documents when the files go
// away. A file rewritten with new content replaces its document.
type Inbox struct {
	ctx      context.Context
	uploader Uploader
	maxBytes int64
	logger   *zap.Logger

	mu    sync.Mutex
	files map[string]inboxEntry // fileid.PathKey -> document
}

// NewInbox returns an inbox uploading through u. Files larger than maxBytes (when
// positive) are skipped. ctx bounds every upload and delete.
func NewInbox(ctx context.Context, u Uploader, maxBytes int64, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{ctx: ctx, uploader: u, maxBytes: maxBytes, logger: logger, files: make(map[string]inboxEntry)}
}

// HandleFile uploads path unless the same content was already uploaded from it.
func (in *Inbox) HandleFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return
	}
	if in.maxBytes > 0 && info.Size() > in.maxBytes {
		in.logger.Warn("inbox file too large", zap.String("path", abs), zap.Int64("size", info.Size()))
		return
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		in.logger.Warn("inbox read failed", zap.String("path", abs), zap.Error(err))
		return
	}
	key := fileid.PathKey(abs)
	sum := fileid.Checksum(content)

	in.mu.Lock()
	defer in.mu.Unlock()
	prev, seen := in.files[key]
	if seen && prev.checksum == sum {
		return
	}
	if seen {
		in.forget(key, prev)
	}
	doc, err := in.uploader.Upload(in.ctx, service.UploadInput{
		Filename:    filepath.Base(abs),
		ContentType: service.PDFContentType,
		Content:     content,
	})
	if doc.ID != "" {
		in.files[key] = inboxEntry{docID: doc.ID, checksum: sum}
	}
	if err != nil {
		in.logger.Warn("inbox upload failed", zap.String("path", abs), zap.Error(err))
		return
	}
	in.logger.Info("inbox file uploaded",
		zap.String("path", abs),
		zap.String("doc_id", doc.ID),
		zap.String("state", string(doc.State)))
}

// HandleRemove deletes the document uploaded from path, if any.
func (in *Inbox) HandleRemove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	key := fileid.PathKey(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	if e, ok := in.files[key]; ok {
		in.forget(key, e)
		in.logger.Info("inbox file removed", zap.String("path", abs), zap.String("doc_id", e.docID))
	}
}

// forget drops the mapping and the document. Callers hold in.mu.
func (in *Inbox) forget(key string, e inboxEntry) {
	delete(in.files, key)
	if err := in.uploader.Delete(in.ctx, e.docID); err != nil && !errors.Is(err, models.ErrNotFound) {
		in.logger.Warn("inbox delete failed", zap.String("doc_id", e.docID), zap.Error(err))
	}
}

// DocumentFor returns the id of the document uploaded from path.
func (in *Inbox) DocumentFor(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.files[fileid.PathKey(abs)]
	return e.docID, ok
}
