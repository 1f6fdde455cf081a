package generation

import (
	"context"

	"github.com/hyperjump/kiku/internal/ratelimit"
)

// LimitedGenerator throttles and retries calls to the wrapped generator.
type LimitedGenerator struct {
	Generator
	limiter *ratelimit.Limiter
}

// NewLimitedGenerator wraps g with limiter.
func NewLimitedGenerator(g Generator, limiter *ratelimit.Limiter) *LimitedGenerator {
	return &LimitedGenerator{Generator: g, limiter: limiter}
}

// Generate calls the wrapped Generate under the limiter.
func (l *LimitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := l.limiter.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		out, err = l.Generator.Generate(ctx, prompt)
		return err
	})
	return out, err
}
