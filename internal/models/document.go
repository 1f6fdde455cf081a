// Package models defines core data structures for documents, chunks, and chat turns.
package models

import "time"

// DocumentState is the ingestion lifecycle state of a document.
type DocumentState string

const (
	StateUploaded   DocumentState = "uploaded"
	StateExtracting DocumentState = "extracting"
	StateIndexing   DocumentState = "indexing"
	StateReady      DocumentState = "ready"
	StateFailed     DocumentState = "failed"
)

// Terminal reports whether no further ingestion transition can happen from s.
func (s DocumentState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Document is the registry's view of an uploaded PDF. Raw bytes are held by the registry
// and fetched separately.
type Document struct {
	ID            string        `json:"id"`
	Filename      string        `json:"filename,omitempty"`
	Size          int64         `json:"size"`
	Checksum      string        `json:"checksum"`
	PageCount     int           `json:"page_count"`
	ChunkCount    int           `json:"chunk_count"`
	State         DocumentState `json:"state"`
	FailureKind   Kind          `json:"failure_kind,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chunk is a contiguous span of a document's extracted text, the unit of embedding and retrieval.
// Start and End are rune offsets into the page texts joined by a single newline.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	StartPage  int       `json:"start_page"`
	EndPage    int       `json:"end_page"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a chunk returned by retrieval with its similarity to the query.
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}
