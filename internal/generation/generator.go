// Package generation turns a prompt into an answer using a language model.
package generation

import (
	"context"
	"strings"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
	Close() error
}

// Prompts wrap retrieved document text in these markers so generators that do not call a
// model can still find it.
const (
	ContextBegin = "<context>"
	ContextEnd   = "</context>"
)

// Options are the sampling parameters shared by remote providers.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultTemperature is used when the configured temperature is zero.
const DefaultTemperature = 0.3

func (o Options) temperature() float64 {
	if o.Temperature <= 0 {
		return DefaultTemperature
	}
	return o.Temperature
}

// ContextOf returns the text between ContextBegin and ContextEnd in prompt, trimmed.
func ContextOf(prompt string) string {
	_, rest, ok := strings.Cut(prompt, ContextBegin)
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, ContextEnd)
	return strings.TrimSpace(body)
}
