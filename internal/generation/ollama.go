package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kiku/internal/upstream"
)

// Ollama defaults.
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.2"
)

// OllamaGenerator calls a local Ollama server's /api/generate endpoint without streaming.
type OllamaGenerator struct {
	client *upstream.Client
	model  string
	opts   Options
}

// NewOllamaGenerator creates a generator for baseURL (default DefaultOllamaBaseURL).
func NewOllamaGenerator(baseURL, model string, opts Options, timeout time.Duration) *OllamaGenerator {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaGenerator{client: upstream.NewClient(baseURL, timeout), model: model, opts: opts}
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the full completion for prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Options: &ollamaOptions{
			NumPredict:  g.opts.MaxTokens,
			Temperature: g.opts.temperature(),
		},
	}
	var resp ollamaGenerateResponse
	if err := g.client.PostJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", fmt.Errorf("ollama generate: %w", errEmptyCompletion)
	}
	return text, nil
}

// Name returns "ollama/<model>".
func (g *OllamaGenerator) Name() string { return "ollama/" + g.model }

// Close is a no-op.
func (g *OllamaGenerator) Close() error { return nil }
