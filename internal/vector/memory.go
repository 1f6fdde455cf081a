package vector

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/pkg/utils"
)

// Index is an in-memory brute-force cosine index for one document. It is built exactly
// once; after Build returns, Query is safe for concurrent use and takes no lock.
type Index struct {
	docID    string
	buildMu  sync.Mutex
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	dimensions int
	ids        []int
	vectors    [][]float32 // L2-normalized copies
}

// NewIndex returns an empty, unbuilt index for docID.
func NewIndex(docID string) *Index {
	return &Index{docID: docID}
}

// Build loads entries into the index. All vectors must share one positive dimension.
// A second call fails with models.ErrAlreadyBuilt.
func (m *Index) Build(entries []Entry) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	if m.snapshot.Load() != nil {
		return fmt.Errorf("index for %s: %w", m.docID, models.ErrAlreadyBuilt)
	}
	s := &snapshot{
		ids:     make([]int, len(entries)),
		vectors: make([][]float32, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: chunk %d has an empty embedding", models.ErrEmbeddingProvider, e.ChunkIndex)
		}
		if i == 0 {
			s.dimensions = len(e.Vector)
		} else if len(e.Vector) != s.dimensions {
			return fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
				models.ErrEmbeddingProvider, e.ChunkIndex, len(e.Vector), s.dimensions)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		utils.NormalizeL2(vec)
		s.ids[i] = e.ChunkIndex
		s.vectors[i] = vec
	}
	m.snapshot.Store(s)
	return nil
}

// Query returns the min(k, Size()) entries most similar to query, by descending cosine
// similarity with ties broken by ascending chunk index. The result is deterministic for a
// given index and query.
func (m *Index) Query(query []float32, k int) ([]Hit, error) {
	s := m.snapshot.Load()
	if s == nil || len(s.ids) == 0 {
		return nil, fmt.Errorf("index for %s: %w", m.docID, models.ErrEmptyIndex)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidInput, k)
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			models.ErrEmbeddingProvider, len(query), s.dimensions)
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	hits := make([]Hit, len(s.ids))
	for i, vec := range s.vectors {
		hits[i] = Hit{ChunkIndex: s.ids[i], Score: InnerProduct(q, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Size returns the number of entries, or 0 before Build.
func (m *Index) Size() int {
	if s := m.snapshot.Load(); s != nil {
		return len(s.ids)
	}
	return 0
}

// Dimensions returns the embedding dimension, or 0 before Build or for an empty index.
func (m *Index) Dimensions() int {
	if s := m.snapshot.Load(); s != nil {
		return s.dimensions
	}
	return 0
}

// DocumentID returns the document the index belongs to.
func (m *Index) DocumentID() string {
	return m.docID
}

// Built reports whether Build has completed.
func (m *Index) Built() bool {
	return m.snapshot.Load() != nil
}
