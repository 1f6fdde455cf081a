package models

import "time"

// TurnOutcome is the result of one chat turn.
type TurnOutcome string

const (
	OutcomeAnswered TurnOutcome = "answered"
	OutcomeFailed   TurnOutcome = "failed"
)

// ChatTurn is one question/answer exchange against a document. Turns are transient.
type ChatTurn struct {
	DocumentID       string         `json:"document_id"`
	Question         string         `json:"question"`
	Chunks           []*ScoredChunk `json:"sources,omitempty"`
	Answer           string         `json:"answer,omitempty"`
	Outcome          TurnOutcome    `json:"outcome"`
	FailureKind      Kind           `json:"failure_kind,omitempty"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	ContextFree      bool           `json:"context_free,omitempty"`
	ContextTruncated bool           `json:"context_truncated,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Source is a retrieved chunk as shown to API clients.
type Source struct {
	ChunkIndex int     `json:"chunk_index"`
	StartPage  int     `json:"start_page"`
	EndPage    int     `json:"end_page"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// Answer is the wire form of a ChatTurn.
type Answer struct {
	DocumentID       string      `json:"document_id"`
	Question         string      `json:"question"`
	Answer           string      `json:"answer"`
	Sources          []Source    `json:"sources"`
	Outcome          TurnOutcome `json:"outcome"`
	ContextFree      bool        `json:"context_free"`
	ContextTruncated bool        `json:"context_truncated"`
	CreatedAt        time.Time   `json:"created_at"`
}

// NewAnswer flattens a turn for output.
func NewAnswer(t *ChatTurn) *Answer {
	a := &Answer{
		DocumentID:       t.DocumentID,
		Question:         t.Question,
		Answer:           t.Answer,
		Sources:          make([]Source, 0, len(t.Chunks)),
		Outcome:          t.Outcome,
		ContextFree:      t.ContextFree,
		ContextTruncated: t.ContextTruncated,
		CreatedAt:        t.CreatedAt,
	}
	for _, sc := range t.Chunks {
		a.Sources = append(a.Sources, Source{
			ChunkIndex: sc.Chunk.Index,
			StartPage:  sc.Chunk.StartPage,
			EndPage:    sc.Chunk.EndPage,
			Score:      sc.Score,
			Content:    sc.Chunk.Content,
		})
	}
	return a
}
