package generation

import (
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/ratelimit"
	"github.com/hyperjump/kiku/internal/upstream"
	"go.uber.org/zap"
)

// New builds the generator selected by cfg.Provider. Remote providers are wrapped with a
// rate limiter from limits.
func New(cfg config.GenerationConfig, limits config.LimitsConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	opts := Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	var g Generator
	switch cfg.Provider {
	case "static":
		return NewStaticGenerator(0), nil
	case "openai":
		key, err := upstream.APIKey(orDefault(cfg.APIKeyEnv, "OPENAI_API_KEY"))
		if err != nil {
			return nil, err
		}
		g = NewOpenAIGenerator(cfg.BaseURL, key, cfg.Model, opts, timeout)
	case "gemini":
		key, err := upstream.APIKey(orDefault(cfg.APIKeyEnv, "GEMINI_API_KEY"))
		if err != nil {
			return nil, err
		}
		g = NewGeminiGenerator(cfg.BaseURL, key, cfg.Model, opts, timeout)
	case "ollama":
		g = NewOllamaGenerator(cfg.BaseURL, cfg.Model, opts, timeout)
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", models.ErrInvalidConfiguration, cfg.Provider)
	}
	logger.Debug("generator ready", zap.String("generator", g.Name()))
	return NewLimitedGenerator(g, ratelimit.New(limits.GenerateRPS, limits, ratelimit.WithLogger(logger))), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
