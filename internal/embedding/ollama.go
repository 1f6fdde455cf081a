package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/upstream"
)

// Ollama defaults.
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
)

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
type OllamaEmbedder struct {
	client     *upstream.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder creates an embedder for baseURL (default DefaultOllamaBaseURL).
func NewOllamaEmbedder(baseURL, model string, dimensions int, timeout time.Duration) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEmbedder{client: upstream.NewClient(baseURL, timeout), model: model, dimensions: dimensions}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	if err := e.client.PostJSON(ctx, "/api/embeddings", ollamaEmbedRequest{Model: e.model, Prompt: text}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding", models.ErrEmbeddingProvider)
	}
	return resp.Embedding, nil
}

// EmbedBatch calls Embed for each text; Ollama has no batch endpoint.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the configured dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

// Name returns "ollama/<model>".
func (e *OllamaEmbedder) Name() string { return "ollama/" + e.model }

// Close is a no-op.
func (e *OllamaEmbedder) Close() error { return nil }
