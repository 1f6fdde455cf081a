package keyword

import (
	"context"
	"testing"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(docID string, texts ...string) []*models.Chunk {
	chunks := make([]*models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = &models.Chunk{DocumentID: docID, Index: i, Content: t, StartPage: i + 1, EndPage: i + 1}
	}
	return chunks
}

func buildIndex(t *testing.T, docID string, texts ...string) *PassageIndex {
	t.Helper()
	idx, err := BuildPassageIndex(docID, testChunks(docID, texts...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestNewIndexMapping(t *testing.T) {
	im := newIndexMapping()
	require.NoError(t, im.Validate())
	assert.Equal(t, "passage", im.DefaultType)

	fields := im.DefaultMapping.Properties["content"].Fields
	require.Len(t, fields, 1)
	assert.Equal(t, standard.Name, fields[0].Analyzer)
}

func TestPassageIndex_SearchFindsContent(t *testing.T) {
	idx := buildIndex(t, "doc1",
		"The quarterly report covers revenue and churn.",
		"This section mentions Omnisyan and other findings. The Bayes app is also referenced.",
		"Appendix with unrelated tables.",
	)

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	ctx := context.Background()
	results, err := idx.Search(ctx, "Omnisyan", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ChunkIndex)
	assert.Equal(t, 2, results[0].StartPage)
	assert.NotEmpty(t, results[0].Fragments)

	// No stemming, so "bayes" matches "Bayes".
	results, err = idx.Search(ctx, "bayes", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].ChunkIndex)
}

func TestPassageIndex_fuzzy(t *testing.T) {
	idx := buildIndex(t, "d", "invoice totals by region", "shipping schedule")
	ctx := context.Background()

	results, err := idx.Search(ctx, "invoise", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "exact search should not match a typo")

	results, err = idx.Search(ctx, "invoise", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ChunkIndex)
}

func TestPassageIndex_phraseBoost(t *testing.T) {
	idx := buildIndex(t, "d",
		"machine parts and learning materials",
		"machine learning",
	)

	results, err := idx.Search(context.Background(), "machine learning", 10, &SearchOptions{PhraseBoost: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ChunkIndex)
}

func TestPassageIndex_limitAndErrors(t *testing.T) {
	idx := buildIndex(t, "d", "alpha one", "alpha two", "alpha three")

	results, err := idx.Search(context.Background(), "alpha", 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = idx.Search(context.Background(), "   ", 2, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, "d", idx.DocumentID())

	_, err = BuildPassageIndex("d", testChunks("other", "x"))
	assert.Error(t, err, "chunks from another document should be rejected")
}

func TestPassageIndex_searchAfterClose(t *testing.T) {
	idx, err := BuildPassageIndex("d", testChunks("d", "alpha one"))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "alpha", 1, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}
