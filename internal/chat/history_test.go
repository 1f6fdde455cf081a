package chat

import (
	"fmt"
	"testing"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
)

func turn(id, q string, outcome models.TurnOutcome) *models.ChatTurn {
	return &models.ChatTurn{DocumentID: id, Question: q, Outcome: outcome}
}

func TestHistory_bounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(turn("a", fmt.Sprint(i), models.OutcomeAnswered))
	}
	ts := h.Turns("a")
	assert.Len(t, ts, 3)
	assert.Equal(t, "2", ts[0].Question)
	assert.Equal(t, "4", ts[2].Question)
}

func TestHistory_recentSkipsFailedTurns(t *testing.T) {
	h := NewHistory(0)
	h.Append(turn("a", "1", models.OutcomeAnswered))
	h.Append(turn("a", "2", models.OutcomeFailed))
	h.Append(turn("a", "3", models.OutcomeAnswered))
	h.Append(turn("b", "other", models.OutcomeAnswered))

	recent := h.Recent("a", 2)
	assert.Equal(t, []string{"1", "3"}, []string{recent[0].Question, recent[1].Question})
	assert.Nil(t, h.Recent("a", 0))
	assert.Equal(t, 2, h.Len())

	h.Clear("a")
	assert.Empty(t, h.Turns("a"))
	assert.Len(t, h.Turns("b"), 1)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ctx text", []*models.ChatTurn{{Question: "q1", Answer: "a1"}}, "q2")
	assert.Contains(t, p, "<context>\nctx text\n</context>")
	assert.Contains(t, p, "User: q1\nAssistant: a1")
	assert.Contains(t, p, "Question: q2\nAnswer:")

	bare := BuildPrompt("", nil, "q")
	assert.NotContains(t, bare, "<context>")
	assert.NotContains(t, bare, "Conversation so far")
}
