package chat

import (
	"strings"

	"github.com/hyperjump/kiku/internal/generation"
	"github.com/hyperjump/kiku/internal/models"
)

const instructions = `You answer questions about a single PDF document.
Use only the document excerpts below. If they do not contain the answer, say so.`

const noContextInstructions = `You answer questions about a single PDF document.
No excerpt of the document matched this question. Answer briefly and say that the
document did not provide the information.`

// BuildPrompt renders the prompt sent to the generator: instructions, the document
// context between generation.ContextBegin and generation.ContextEnd, earlier exchanges
// and the question. An empty context omits the context block.
func BuildPrompt(context string, history []*models.ChatTurn, question string) string {
	var b strings.Builder
	if context == "" {
		b.WriteString(noContextInstructions)
	} else {
		b.WriteString(instructions)
		b.WriteString("\n\n")
		b.WriteString(generation.ContextBegin)
		b.WriteString("\n")
		b.WriteString(context)
		b.WriteString("\n")
		b.WriteString(generation.ContextEnd)
	}
	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, t := range history {
			b.WriteString("User: ")
			b.WriteString(t.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(t.Answer)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
