package chat

import (
	"sync"

	"github.com/hyperjump/kiku/internal/models"
)

// DefaultHistoryCapacity is the number of turns kept per document when NewHistory is given
// a non-positive capacity.
const DefaultHistoryCapacity = 50

// History keeps the most recent chat turns of every document in memory. It is safe for
// concurrent use.
type History struct {
	mu       sync.Mutex
	capacity int
	turns    map[string][]*models.ChatTurn
}

// NewHistory returns a history keeping at most capacity turns per document.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity, turns: make(map[string][]*models.ChatTurn)}
}

// Append records turn under turn.DocumentID, evicting the oldest turn when full.
func (h *History) Append(turn *models.ChatTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := append(h.turns[turn.DocumentID], turn)
	if len(ts) > h.capacity {
		ts = append([]*models.ChatTurn(nil), ts[len(ts)-h.capacity:]...)
	}
	h.turns[turn.DocumentID] = ts
}

// Turns returns a copy of the document's turns, oldest first.
func (h *History) Turns(id string) []*models.ChatTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.ChatTurn(nil), h.turns[id]...)
}

// Recent returns up to n of the document's most recent answered turns, oldest first.
func (h *History) Recent(id string, n int) []*models.ChatTurn {
	if n <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.turns[id]
	var out []*models.ChatTurn
	for i := len(ts) - 1; i >= 0 && len(out) < n; i-- {
		if ts[i].Outcome == models.OutcomeAnswered {
			out = append(out, ts[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Clear drops every turn of the document.
func (h *History) Clear(id string) {
	h.mu.Lock()
	delete(h.turns, id)
	h.mu.Unlock()
}

// Len returns the number of documents with at least one turn.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
