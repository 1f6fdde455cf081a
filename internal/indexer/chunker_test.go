package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(n int, text string) models.Page {
	return models.Page{Number: n, Text: text}
}

func TestNewChunker_invalid(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}

func TestChunker_Chunk(t *testing.T) {
	c, err := NewChunker(9, 3)
	require.NoError(t, err)

	chunks := c.Chunk("doc1", []models.Page{page(1, "AAAA BBBB CCCC DDDD")})
	want := []string{"AAAA BBBB", "BBB CCCC ", "CC DDDD"}
	require.Len(t, chunks, len(want))
	for i, ch := range chunks {
		assert.Equal(t, want[i], ch.Content, "chunk %d", i)
		assert.Equal(t, "doc1", ch.DocumentID)
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunker_coverage(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 37)
	L := len([]rune(text))
	for _, cfg := range []struct{ size, overlap int }{{1, 0}, {7, 0}, {50, 10}, {64, 63}, {1000, 200}} {
		c, err := NewChunker(cfg.size, cfg.overlap)
		require.NoError(t, err)

		chunks := c.Chunk("d", []models.Page{page(1, text)})
		require.NotEmpty(t, chunks, "size=%d", cfg.size)
		assert.Equal(t, 0, chunks[0].Start, "size=%d first chunk start", cfg.size)
		assert.Equal(t, L, chunks[len(chunks)-1].End, "size=%d last chunk end", cfg.size)
		for i, ch := range chunks {
			n := len([]rune(ch.Content))
			assert.Equal(t, ch.End-ch.Start, n, "size=%d chunk %d span", cfg.size, i)
			assert.LessOrEqual(t, n, cfg.size, "size=%d chunk %d", cfg.size, i)
			if i > 0 {
				assert.Equal(t, cfg.overlap, chunks[i-1].End-ch.Start, "size=%d chunk %d overlap", cfg.size, i)
			}
		}
	}
}

func TestChunker_pages(t *testing.T) {
	c, err := NewChunker(6, 0)
	require.NoError(t, err)
	// joined: "aaaaa\nbbbbb" with page 2 empty and skipped
	chunks := c.Chunk("d", []models.Page{page(1, "aaaaa"), page(2, ""), page(3, "bbbbb")})
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaaa\n", chunks[0].Content)
	assert.Equal(t, []int{1, 1}, []int{chunks[0].StartPage, chunks[0].EndPage})
	assert.Equal(t, "bbbbb", chunks[1].Content)
	assert.Equal(t, []int{3, 3}, []int{chunks[1].StartPage, chunks[1].EndPage})

	c, err = NewChunker(8, 0)
	require.NoError(t, err)
	chunks = c.Chunk("d", []models.Page{page(1, "aaaaa"), page(2, "bbbbb")})
	assert.Equal(t, []int{1, 2}, []int{chunks[0].StartPage, chunks[0].EndPage}, "chunk spanning two pages")
}

func TestChunker_multibyte(t *testing.T) {
	c, err := NewChunker(2, 0)
	require.NoError(t, err)
	chunks := c.Chunk("d", []models.Page{page(1, "日本語")})
	require.Len(t, chunks, 2)
	assert.Equal(t, "日本", chunks[0].Content)
	assert.Equal(t, "語", chunks[1].Content)
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c, err := NewChunker(5, 1)
	require.NoError(t, err)
	assert.Empty(t, c.Chunk("d", nil))
	assert.Empty(t, c.Chunk("d", []models.Page{page(1, ""), page(2, "")}))
}
