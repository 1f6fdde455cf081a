package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kiku/internal/chat"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/extract"
	"github.com/hyperjump/kiku/internal/generation"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/pdftest"
	"github.com/hyperjump/kiku/internal/registry"
	"github.com/hyperjump/kiku/internal/retrieval"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", errors.New("upstream down")
}
func (failingGenerator) Name() string { return "failing" }
func (failingGenerator) Close() error { return nil }

func newService(t *testing.T, blobs storage.BlobStore, async bool, gen generation.Generator) *Service {
	t.Helper()
	rag := config.RAGConfig{
		ChunkSize:          40,
		ChunkOverlap:       10,
		RetrievalK:         2,
		MaxContextLength:   200,
		EmbedConcurrency:   2,
		HistoryTurns:       4,
		EmptyContextPolicy: config.PolicyDegrade,
	}
	e := embedding.NewMockEmbedder(8)
	reg := registry.New(blobs)
	idx, err := indexer.NewIndexer(reg, extract.NewExtractor(), e, rag)
	require.NoError(t, err)
	engine, err := retrieval.NewEngine(reg, e, rag)
	require.NoError(t, err)
	pipeline, err := chat.NewPipeline(engine, gen, chat.NewHistory(0), rag)
	require.NoError(t, err)
	svc := New(reg, idx, pipeline, config.IngestConfig{Async: async, TimeoutSeconds: 30},
		WithProviders(e.Name(), gen.Name()))
	t.Cleanup(func() {
		svc.Close()
		_ = reg.Close()
	})
	return svc
}

func pdfUpload(pages ...string) UploadInput {
	return UploadInput{Filename: "doc.pdf", ContentType: PDFContentType, Content: pdftest.Build(pages...)}
}

func TestUpload_sync(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), pdfUpload("AAAA BBBB CCCC DDDD", "second page"))
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, doc.State)
	assert.Equal(t, 2, doc.PageCount)
	assert.Positive(t, doc.ChunkCount)

	got, err := svc.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Len(t, svc.List(), 1)
}

func TestUpload_contentType(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	in := pdfUpload("text")

	in.ContentType = "application/pdf; charset=binary"
	_, err := svc.Upload(context.Background(), in)
	require.NoError(t, err, "media type parameters are ignored")

	for _, ct := range []string{"", "text/plain", "application/json", "not a / type;;"} {
		in.ContentType = ct
		_, err := svc.Upload(context.Background(), in)
		assert.ErrorIs(t, err, models.ErrInvalidInput, "content type %q", ct)
	}
	assert.Len(t, svc.List(), 1, "rejected uploads are not registered")
}

func TestUpload_unreadable(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), UploadInput{Filename: "x.pdf", ContentType: PDFContentType, Content: []byte("garbage")})
	assert.ErrorIs(t, err, models.ErrUnreadableDocument)
	assert.Equal(t, models.StateFailed, doc.State)
	assert.Equal(t, models.KindUnreadableDocument, doc.FailureKind)

	_, err = svc.Chat(context.Background(), doc.ID, "anything")
	assert.ErrorIs(t, err, models.ErrNotReady)
}

func TestUpload_async(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), true, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), pdfUpload("AAAA BBBB CCCC DDDD"))
	require.NoError(t, err)
	assert.Equal(t, models.StateUploaded, doc.State)

	require.Eventually(t, func() bool {
		d, err := svc.Get(doc.ID)
		return err == nil && d.State == models.StateReady
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUpload_afterClose(t *testing.T) {
	for _, async := range []bool{false, true} {
		svc := newService(t, storage.NewMemoryBlobStore(), async, generation.NewStaticGenerator(0))
		svc.Close()

		_, err := svc.Upload(context.Background(), pdfUpload("late upload"))
		assert.ErrorIs(t, err, registry.ErrClosed, "async=%v", async)
		assert.Empty(t, svc.List(), "async=%v", async)
	}
}

func TestFetch_returnsBytesVerbatim(t *testing.T) {
	blobs, err := storage.NewSQLiteBlobStore(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	svc := newService(t, blobs, false, generation.NewStaticGenerator(0))
	in := pdfUpload("raw bytes")
	doc, err := svc.Upload(context.Background(), in)
	require.NoError(t, err)

	raw, err := svc.Fetch(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Content, raw)

	_, err = svc.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChat(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), pdfUpload("AAAA BBBB CCCC DDDD"))
	require.NoError(t, err)

	turn, err := svc.Chat(context.Background(), doc.ID, "what about BBBB?")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAnswered, turn.Outcome)
	assert.NotEmpty(t, turn.Answer)
	assert.NotEmpty(t, turn.Chunks)

	_, err = svc.Chat(context.Background(), doc.ID, "  ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Chat(context.Background(), "missing", "question")
	assert.ErrorIs(t, err, models.ErrNotFound)

	history, err := svc.History(doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	_, err = svc.History("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChat_generationFailureKeepsDocumentReady(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, failingGenerator{})
	doc, err := svc.Upload(context.Background(), pdfUpload("AAAA BBBB CCCC DDDD"))
	require.NoError(t, err)

	turn, err := svc.Chat(context.Background(), doc.ID, "question")
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
	require.NotNil(t, turn)
	assert.Equal(t, models.OutcomeFailed, turn.Outcome)

	got, err := svc.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, got.State)
}

func TestDelete(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), pdfUpload("AAAA BBBB CCCC DDDD"))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), doc.ID, "question")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), doc.ID))
	_, err = svc.Get(doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.Fetch(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.Chat(context.Background(), doc.ID, "question")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, svc.chat.History().Turns(doc.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), doc.ID), models.ErrNotFound)
}

func TestSearchPassages(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	doc, err := svc.Upload(context.Background(), pdfUpload("alpha beta gamma", "delta epsilon"))
	require.NoError(t, err)

	passages, err := svc.SearchPassages(context.Background(), doc.ID, "delta", 0)
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Contains(t, passages[0].Content, "delta")
	assert.Equal(t, 2, passages[0].EndPage)

	_, err = svc.SearchPassages(context.Background(), doc.ID, " ", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.SearchPassages(context.Background(), "missing", "delta", 0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStatus(t *testing.T) {
	svc := newService(t, storage.NewMemoryBlobStore(), false, generation.NewStaticGenerator(0))
	in := pdfUpload("AAAA BBBB")
	_, err := svc.Upload(context.Background(), in)
	require.NoError(t, err)
	_, _ = svc.Upload(context.Background(), UploadInput{Filename: "bad.pdf", ContentType: PDFContentType, Content: []byte("bad")})

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, 1, st.States[models.StateReady])
	assert.Equal(t, 1, st.States[models.StateFailed])
	assert.Equal(t, int64(len(in.Content)+3), st.BlobBytes)
	assert.Equal(t, "mock/8", st.Embedder)
	assert.Equal(t, "static", st.Generator)
}
