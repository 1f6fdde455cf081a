package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/kiku/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "mock/<dimensions>".
func (e *MockEmbedder) Name() string {
	return fmt.Sprintf("mock/%d", e.dimensions)
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// FuncEmbedder adapts a function to Embedder. Tests use it for stub vectors and for
// counting or failing calls.
type FuncEmbedder struct {
	Fn   func(ctx context.Context, text string) ([]float32, error)
	Dims int
	ID   string
}

// Embed calls Fn.
func (f *FuncEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.Fn(ctx, text)
}

// EmbedBatch calls Fn for each text.
func (f *FuncEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, f, texts)
}

// Dimensions returns Dims.
func (f *FuncEmbedder) Dimensions() int { return f.Dims }

// Name returns ID, or "func" when unset.
func (f *FuncEmbedder) Name() string {
	if f.ID == "" {
		return "func"
	}
	return f.ID
}

// Close is a no-op.
func (f *FuncEmbedder) Close() error { return nil }

// LengthEmbedder maps text to the 1-dimensional vector [rune count].
func LengthEmbedder() *FuncEmbedder {
	return &FuncEmbedder{
		Dims: 1,
		ID:   "length",
		Fn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{float32(len([]rune(text)))}, nil
		},
	}
}
