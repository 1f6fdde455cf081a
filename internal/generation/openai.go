package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kiku/internal/upstream"
)

// OpenAI defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// errEmptyCompletion is returned when a provider answers with no text.
var errEmptyCompletion = errors.New("empty completion")

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIGenerator struct {
	client *upstream.Client
	model  string
	opts   Options
}

// NewOpenAIGenerator creates a generator for baseURL (default DefaultOpenAIBaseURL).
func NewOpenAIGenerator(baseURL, apiKey, model string, opts Options, timeout time.Duration) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	c := upstream.NewClient(baseURL, timeout)
	if apiKey != "" {
		c.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &OpenAIGenerator{client: c, model: model, opts: opts}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openAIChatRequest{
		Model:       g.model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: g.opts.temperature(),
		MaxTokens:   g.opts.MaxTokens,
	}
	var resp openAIChatResponse
	if err := g.client.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: %w", errEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai chat: %w", errEmptyCompletion)
	}
	return text, nil
}

// Name returns "openai/<model>".
func (g *OpenAIGenerator) Name() string { return "openai/" + g.model }

// Close is a no-op.
func (g *OpenAIGenerator) Close() error { return nil }
