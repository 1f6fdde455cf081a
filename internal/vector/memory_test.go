package vector

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Query(t *testing.T) {
	idx := NewIndex("doc1")
	require.NoError(t, idx.Build([]Entry{
		{ChunkIndex: 0, Vector: []float32{1, 0, 0}},
		{ChunkIndex: 1, Vector: []float32{0, 1, 0}},
		{ChunkIndex: 2, Vector: []float32{0, 0, 2}},
	}))
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 3, idx.Dimensions())
	assert.Equal(t, "doc1", idx.DocumentID())

	hits, err := idx.Query([]float32{0, 0, 5}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 0, hits[1].ChunkIndex, "tie broken by chunk index")
}

func TestIndex_QueryKLargerThanSize(t *testing.T) {
	idx := NewIndex("d")
	require.NoError(t, idx.Build([]Entry{{ChunkIndex: 0, Vector: []float32{1, 1}}}))

	hits, err := idx.Query([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_tieBreakByChunkIndex(t *testing.T) {
	// Length embedding: every vector is 1-d and positive, so every score ties at 1.
	idx := NewIndex("d")
	require.NoError(t, idx.Build([]Entry{
		{ChunkIndex: 0, Vector: []float32{9}},
		{ChunkIndex: 1, Vector: []float32{9}},
		{ChunkIndex: 2, Vector: []float32{7}},
	}))

	hits, err := idx.Query([]float32{9}, 3)
	require.NoError(t, err)
	for i, h := range hits {
		assert.Equal(t, i, h.ChunkIndex)
	}
}

func TestIndex_deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entries := make([]Entry, 200)
	for i := range entries {
		v := make([]float32, 16)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		entries[i] = Entry{ChunkIndex: i, Vector: v}
	}
	query := entries[17].Vector

	idx := NewIndex("d")
	require.NoError(t, idx.Build(entries))
	first, err := idx.Query(query, 10)
	require.NoError(t, err)
	assert.Equal(t, 17, first[0].ChunkIndex, "self query top hit")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := idx.Query(query, 10)
			if assert.NoError(t, err) {
				assert.Equal(t, first, got)
			}
		}()
	}
	wg.Wait()

	// A second index built from the same entries answers identically.
	other := NewIndex("d")
	require.NoError(t, other.Build(entries))
	second, err := other.Query(query, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIndex_errors(t *testing.T) {
	idx := NewIndex("d")
	_, err := idx.Query([]float32{1}, 1)
	assert.ErrorIs(t, err, models.ErrEmptyIndex, "query before build")

	require.NoError(t, idx.Build(nil))
	_, err = idx.Query([]float32{1}, 1)
	assert.ErrorIs(t, err, models.ErrEmptyIndex, "query on empty index")
	assert.ErrorIs(t, idx.Build([]Entry{{ChunkIndex: 0, Vector: []float32{1}}}), models.ErrAlreadyBuilt)

	mixed := NewIndex("d")
	err = mixed.Build([]Entry{{ChunkIndex: 0, Vector: []float32{1, 2}}, {ChunkIndex: 1, Vector: []float32{1}}})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider, "mixed dimensions")
	assert.False(t, mixed.Built(), "failed Build should leave the index unbuilt")
	assert.ErrorIs(t, NewIndex("d").Build([]Entry{{ChunkIndex: 0}}), models.ErrEmbeddingProvider, "empty vector")

	ok := NewIndex("d")
	require.NoError(t, ok.Build([]Entry{{ChunkIndex: 0, Vector: []float32{1, 2}}}))
	_, err = ok.Query([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider, "query dimension mismatch")
	_, err = ok.Query([]float32{1, 2}, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput, "k=0")
}

func TestIndex_buildCopiesVectors(t *testing.T) {
	v := []float32{3, 4}
	idx := NewIndex("d")
	require.NoError(t, idx.Build([]Entry{{ChunkIndex: 0, Vector: v}}))
	assert.Equal(t, []float32{3, 4}, v, "Build modified the caller's vector")
}

func TestInnerProduct(t *testing.T) {
	assert.InDelta(t, 11.0, InnerProduct([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.Zero(t, InnerProduct([]float32{1, 0}, []float32{0, 3}), "orthogonal")
	assert.Zero(t, InnerProduct([]float32{1, 2}, []float32{1}), "length mismatch")
	assert.Zero(t, InnerProduct(nil, nil), "empty")
}

func BenchmarkIndex_Query(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			rng := rand.New(rand.NewSource(1))
			entries := make([]Entry, n)
			for i := range entries {
				v := make([]float32, 384)
				for j := range v {
					v[j] = rng.Float32()
				}
				entries[i] = Entry{ChunkIndex: i, Vector: v}
			}
			idx := NewIndex("bench")
			if err := idx.Build(entries); err != nil {
				b.Fatal(err)
			}
			q := entries[0].Vector
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := idx.Query(q, 4); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
