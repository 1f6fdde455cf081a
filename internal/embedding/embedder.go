// Package embedding provides text embedding providers: a local ONNX model, remote
// OpenAI/Gemini/Ollama APIs, a deterministic mock, plus caching and rate-limit wrappers.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the provider and model; indexes built with one name must be
	// queried with the same one.
	Name() string
	Close() error
}

// embedEach is the EmbedBatch fallback for providers without a batch endpoint.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
