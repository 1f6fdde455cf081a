// Package storage holds the raw bytes of uploaded documents.
package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when no blob is stored under an id.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores uploaded document bytes verbatim, keyed by document id.
// Implementations are safe for concurrent use.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	// Size returns the total number of stored bytes.
	Size(ctx context.Context) (int64, error)
	Close() error
}
