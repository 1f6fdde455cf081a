// Package keyword provides per-document keyword (BM25) search over chunk text.
package keyword

// SearchOptions optional parameters for passage search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score when query terms appear close together (phrase match).
	// Values > 1 boost passages with adjacent query terms (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// Passage is a single keyword search hit: one chunk of the document.
type Passage struct {
	ChunkIndex int      `json:"chunk_index"`
	Score      float64  `json:"score"`
	StartPage  int      `json:"start_page"`
	EndPage    int      `json:"end_page"`
	Content    string   `json:"content"`
	Fragments  []string `json:"fragments,omitempty"`
}
