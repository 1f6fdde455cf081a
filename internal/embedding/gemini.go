package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/upstream"
)

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "text-embedding-004"
)

// GeminiEmbedder calls the Gemini batchEmbedContents endpoint.
type GeminiEmbedder struct {
	client     *upstream.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates an embedder for baseURL (default DefaultGeminiBaseURL).
func NewGeminiEmbedder(baseURL, apiKey, model string, dimensions int, timeout time.Duration) *GeminiEmbedder {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	c := upstream.NewClient(baseURL, timeout)
	if apiKey != "" {
		c.SetHeader("x-goog-api-key", apiKey)
	}
	return &GeminiEmbedder{client: c, model: model, dimensions: dimensions}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed returns the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one batchEmbedContents request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := "models/" + e.model
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{Model: model, Content: geminiContent{Parts: []geminiPart{{Text: t}}}}
	}
	var resp geminiBatchResponse
	if err := e.client.PostJSON(ctx, "/"+model+":batchEmbedContents", req, &resp); err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs", models.ErrEmbeddingProvider, len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: gemini returned an empty embedding", models.ErrEmbeddingProvider)
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }

// Name returns "gemini/<model>".
func (e *GeminiEmbedder) Name() string { return "gemini/" + e.model }

// Close is a no-op.
func (e *GeminiEmbedder) Close() error { return nil }
