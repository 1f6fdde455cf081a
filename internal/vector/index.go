// Package vector provides the per-document similarity index over chunk embeddings.
package vector

// Entry is one chunk embedding added to an index.
type Entry struct {
	ChunkIndex int
	Vector     []float32
}

// Hit is a single query result; Score is the cosine similarity in [-1, 1].
type Hit struct {
	ChunkIndex int
	Score      float64
}

// Searcher is the read side of an index, as held by the document registry.
type Searcher interface {
	Query(query []float32, k int) ([]Hit, error)
	Size() int
	Dimensions() int
	DocumentID() string
}
