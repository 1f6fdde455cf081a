package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kiku/internal/upstream"
)

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiGenerator calls the Gemini generateContent endpoint.
type GeminiGenerator struct {
	client *upstream.Client
	model  string
	opts   Options
}

// NewGeminiGenerator creates a generator for baseURL (default DefaultGeminiBaseURL).
func NewGeminiGenerator(baseURL, apiKey, model string, opts Options, timeout time.Duration) *GeminiGenerator {
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
	return &GeminiGenerator{client: c, model: model, opts: opts}
}

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type gmRequest struct {
	Contents         []gmContent         `json:"contents"`
	GenerationConfig *gmGenerationConfig `json:"generationConfig,omitempty"`
}

type gmResponse struct {
	Candidates []struct {
		Content gmContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt as one user turn and joins the text parts of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := gmRequest{
		Contents: []gmContent{{Role: "user", Parts: []gmPart{{Text: prompt}}}},
		GenerationConfig: &gmGenerationConfig{
			Temperature:     g.opts.temperature(),
			MaxOutputTokens: g.opts.MaxTokens,
		},
	}
	var resp gmResponse
	if err := g.client.PostJSON(ctx, "/models/"+g.model+":generateContent", req, &resp); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini generate: %w", errEmptyCompletion)
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("gemini generate: %w", errEmptyCompletion)
	}
	return text, nil
}

// Name returns "gemini/<model>".
func (g *GeminiGenerator) Name() string { return "gemini/" + g.model }

// Close is a no-op.
func (g *GeminiGenerator) Close() error { return nil }
