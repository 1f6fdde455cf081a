package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/extract"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/pdftest"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg    *registry.Registry
	idx    *indexer.Indexer
	engine *Engine
}

func newFixture(t *testing.T, e embedding.Embedder, size, overlap int) *fixture {
	t.Helper()
	cfg := config.RAGConfig{
		ChunkSize:          size,
		ChunkOverlap:       overlap,
		RetrievalK:         1,
		MaxContextLength:   100,
		EmbedConcurrency:   2,
		EmptyContextPolicy: config.PolicyDegrade,
	}
	reg := registry.New(storage.NewMemoryBlobStore())
	t.Cleanup(func() { _ = reg.Close() })
	idx, err := indexer.NewIndexer(reg, extract.NewExtractor(), e, cfg)
	require.NoError(t, err)
	engine, err := NewEngine(reg, e, cfg)
	require.NoError(t, err)
	return &fixture{reg: reg, idx: idx, engine: engine}
}

func (f *fixture) ingest(t *testing.T, pages ...string) string {
	t.Helper()
	doc, err := f.reg.Register(context.Background(), "doc.pdf", pdftest.Build(pages...))
	require.NoError(t, err)
	_, err = f.idx.Ingest(context.Background(), doc.ID)
	require.NoError(t, err)
	return doc.ID
}

func TestRetrieve_endToEndScenario(t *testing.T) {
	f := newFixture(t, embedding.LengthEmbedder(), 9, 3)
	id := f.ingest(t, "AAAA BBBB CCCC DDDD")

	// The length embedder maps a nine-rune question to [9].
	got, err := f.engine.Retrieve(context.Background(), id, "what is A", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Chunk.Index)
	assert.Equal(t, "AAAA BBBB", got[0].Chunk.Content)
}

func TestRetrieve_defaultKAndOrder(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(32), 20, 0)
	id := f.ingest(t, strings.Repeat("abcdefghij", 10))

	got, err := f.engine.Retrieve(context.Background(), id, "abcdefghij", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1, "k <= 0 uses the configured default")

	got, err = f.engine.Retrieve(context.Background(), id, "abcdefghij", 100)
	require.NoError(t, err)
	assert.Len(t, got, 5, "k is capped at the index size")
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Chunk.Index < cur.Chunk.Index),
			"results out of order at %d", i)
	}
}

func TestRetrieve_gating(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8), 100, 0)
	ctx := context.Background()

	_, err := f.engine.Retrieve(ctx, "unknown", "question", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	doc, err := f.reg.Register(ctx, "doc.pdf", pdftest.Build("hello"))
	require.NoError(t, err)
	_, err = f.engine.Retrieve(ctx, doc.ID, "question", 1)
	assert.ErrorIs(t, err, models.ErrNotReady, "uploaded")

	ok, err := f.reg.Claim(doc.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.engine.Retrieve(ctx, doc.ID, "question", 1)
	assert.ErrorIs(t, err, models.ErrNotReady, "extracting")

	require.NoError(t, f.reg.MarkFailed(doc.ID, models.ErrUnreadableDocument))
	_, err = f.engine.Retrieve(ctx, doc.ID, "question", 1)
	assert.ErrorIs(t, err, models.ErrNotReady, "failed")
}

func TestRetrieve_invalidQuestion(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8), 100, 0)
	id := f.ingest(t, "hello")
	_, err := f.engine.Retrieve(context.Background(), id, "  \n ", 1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRetrieve_embedderMismatch(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(8), 100, 0)
	id := f.ingest(t, "hello")

	other, err := NewEngine(f.reg, embedding.NewMockEmbedder(16), config.RAGConfig{RetrievalK: 1})
	require.NoError(t, err)
	_, err = other.Retrieve(context.Background(), id, "hello", 1)
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestRetrieve_embedderFailure(t *testing.T) {
	calls := 0
	e := &embedding.FuncEmbedder{Dims: 1, ID: "flaky", Fn: func(context.Context, string) ([]float32, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("quota exceeded")
		}
		return []float32{1}, nil
	}}
	f := newFixture(t, e, 100, 0)
	id := f.ingest(t, "hello")
	_, err := f.engine.Retrieve(context.Background(), id, "hello", 1)
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestNewEngine_invalidK(t *testing.T) {
	_, err := NewEngine(nil, embedding.NewMockEmbedder(8), config.RAGConfig{})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
