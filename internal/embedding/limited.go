package embedding

import (
	"context"

	"github.com/hyperjump/kiku/internal/ratelimit"
)

// LimitedEmbedder throttles and retries calls to the wrapped embedder.
type LimitedEmbedder struct {
	Embedder
	limiter *ratelimit.Limiter
}

// NewLimitedEmbedder wraps e with limiter.
func NewLimitedEmbedder(e Embedder, limiter *ratelimit.Limiter) *LimitedEmbedder {
	return &LimitedEmbedder{Embedder: e, limiter: limiter}
}

// Embed calls the wrapped Embed under the limiter.
func (l *LimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := l.limiter.Do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = l.Embedder.Embed(ctx, text)
		return err
	})
	return out, err
}

// EmbedBatch calls the wrapped EmbedBatch under the limiter, as one request.
func (l *LimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := l.limiter.Do(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		out, err = l.Embedder.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}
