package keyword

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kiku/internal/models"
)

// PassageIndex is an in-memory Bleve index over one document's chunks. It is built once
// at ingestion and is read-only afterwards.
type PassageIndex struct {
	docID  string
	index  bleve.Index
	chunks []*models.Chunk
}

type passageDoc struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
}

func newIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so a query matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	pageFieldMapping := bleve.NewNumericFieldMapping()
	pageFieldMapping.Index = false
	docMapping.AddFieldMappingsAt("page", pageFieldMapping)
	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping
	return im
}

// BuildPassageIndex indexes chunks, which must all belong to docID, in one batch.
func BuildPassageIndex(docID string, chunks []*models.Chunk) (*PassageIndex, error) {
	index, err := bleve.NewMemOnly(newIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create passage index: %w", err)
	}
	batch := index.NewBatch()
	for _, ch := range chunks {
		if ch.DocumentID != docID {
			_ = index.Close()
			return nil, fmt.Errorf("chunk %d belongs to %s, not %s", ch.Index, ch.DocumentID, docID)
		}
		if err := batch.Index(strconv.Itoa(ch.Index), passageDoc{Content: ch.Content, Page: ch.StartPage}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index chunk %d: %w", ch.Index, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index passages: %w", err)
	}
	return &PassageIndex{docID: docID, index: index, chunks: chunks}, nil
}

// Search runs a match query over chunk text and returns up to limit passages by
// descending BM25 score, ties by ascending chunk index.
func (p *PassageIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("content")
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	// Fetch more than limit so the phrase boost can reorder.
	req.Size = max(limit*2, 20)
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")
	results, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexClosed) {
			return nil, fmt.Errorf("%w: passage index for %s is closed", models.ErrNotFound, p.docID)
		}
		return nil, fmt.Errorf("passage search failed: %w", err)
	}

	phraseMatches := map[string]bool{}
	if phraseBoost > 1.0 && len(tokenizeQuery(query)) > 1 {
		phraseMatches = p.findPhraseMatches(ctx, query, req.Size)
	}

	out := make([]Passage, 0, len(results.Hits))
	for _, hit := range results.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(p.chunks) {
			continue
		}
		ch := p.chunks[i]
		score := hit.Score
		if phraseMatches[hit.ID] {
			score *= phraseBoost
		}
		out = append(out, Passage{
			ChunkIndex: ch.Index,
			Score:      score,
			StartPage:  ch.StartPage,
			EndPage:    ch.EndPage,
			Content:    ch.Content,
			Fragments:  hit.Fragments["content"],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries on content, one per term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("content")
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// findPhraseMatches returns the ids of passages where the query appears as a phrase.
func (p *PassageIndex) findPhraseMatches(ctx context.Context, query string, size int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField("content")
	req := bleve.NewSearchRequest(pq)
	req.Size = size
	results, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DocumentID returns the document the index belongs to.
func (p *PassageIndex) DocumentID() string {
	return p.docID
}

// DocCount returns the number of indexed passages.
func (p *PassageIndex) DocCount() (uint64, error) {
	return p.index.DocCount()
}

// Close releases the Bleve index.
func (p *PassageIndex) Close() error {
	return p.index.Close()
}
