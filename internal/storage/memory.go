package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBlobStore keeps blobs in a map.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore returns an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under id, replacing any existing blob.
func (m *MemoryBlobStore) Put(_ context.Context, id string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.blobs[id] = buf
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the blob stored under id.
func (m *MemoryBlobStore) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes the blob under id. Deleting a missing id is not an error.
func (m *MemoryBlobStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

// Size returns the total number of stored bytes.
func (m *MemoryBlobStore) Size(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, b := range m.blobs {
		n += int64(len(b))
	}
	return n, nil
}

// Close drops all blobs.
func (m *MemoryBlobStore) Close() error {
	m.mu.Lock()
	m.blobs = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}
