package indexer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
)

// Chunker splits page text into overlapping character windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// Requires 0 <= chunkOverlap < chunkSize.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize < 1 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d", models.ErrInvalidConfiguration, chunkSize, chunkOverlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Chunk joins the non-empty pages with a single newline and splits the result into
// windows of chunkSize runes, each starting chunkSize-chunkOverlap runes after the
// previous one. The last chunk may be shorter. Returns nil when there is no text.
func (c *Chunker) Chunk(docID string, pages []models.Page) []*models.Chunk {
	var b strings.Builder
	var starts []int // rune offset where each kept page begins
	var numbers []int
	offset := 0
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if len(starts) > 0 {
			b.WriteByte('\n')
			offset++
		}
		starts = append(starts, offset)
		numbers = append(numbers, p.Number)
		b.WriteString(p.Text)
		offset += len([]rune(p.Text))
	}
	text := []rune(b.String())
	if len(text) == 0 {
		return nil
	}

	pageAt := func(pos int) int {
		i := sort.SearchInts(starts, pos+1) - 1
		if i < 0 {
			i = 0
		}
		return numbers[i]
	}

	step := c.chunkSize - c.chunkOverlap
	chunks := make([]*models.Chunk, 0, len(text)/step+1)
	for start := 0; start < len(text); start += step {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, &models.Chunk{
			DocumentID: docID,
			Index:      len(chunks),
			Start:      start,
			End:        end,
			StartPage:  pageAt(start),
			EndPage:    pageAt(end - 1),
			Content:    string(text[start:end]),
		})
		if end == len(text) {
			break
		}
	}
	return chunks
}
