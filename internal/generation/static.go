package generation

import (
	"context"
	"strings"

	"github.com/hyperjump/kiku/pkg/utils"
)

// StaticGenerator answers without a language model: it quotes the start of the prompt's
// context. Useful offline and in tests.
type StaticGenerator struct {
	// MaxExcerpt caps the quoted context in runes; 0 means 500.
	MaxExcerpt int
}

// NewStaticGenerator returns a StaticGenerator quoting up to maxExcerpt runes.
func NewStaticGenerator(maxExcerpt int) *StaticGenerator {
	return &StaticGenerator{MaxExcerpt: maxExcerpt}
}

// Generate returns the leading excerpt of the prompt's context.
func (g *StaticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	excerpt := ContextOf(prompt)
	if excerpt == "" {
		return "No language model is configured and the document offered no relevant passage.", nil
	}
	limit := g.MaxExcerpt
	if limit <= 0 {
		limit = 500
	}
	var b strings.Builder
	b.WriteString("No language model is configured. The most relevant passage reads:\n\n")
	b.WriteString(utils.Truncate(excerpt, limit))
	return b.String(), nil
}

// Name returns "static".
func (g *StaticGenerator) Name() string { return "static" }

// Close is a no-op.
func (g *StaticGenerator) Close() error { return nil }
