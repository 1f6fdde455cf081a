package embedding

import (
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/ratelimit"
	"github.com/hyperjump/kiku/internal/upstream"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider. Remote providers are wrapped with a
// rate limiter from limits; every provider except mock is wrapped with a cache when
// cfg.CacheSize > 0.
func New(cfg config.EmbeddingConfig, limits config.LimitsConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var e Embedder
	remote := true
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx":
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		e, remote = onnx, false
	case "openai":
		key, err := upstream.APIKey(orDefault(cfg.APIKeyEnv, "OPENAI_API_KEY"))
		if err != nil {
			return nil, err
		}
		e = NewOpenAIEmbedder(cfg.BaseURL, key, cfg.Model, cfg.Dimensions, timeout)
	case "gemini":
		key, err := upstream.APIKey(orDefault(cfg.APIKeyEnv, "GEMINI_API_KEY"))
		if err != nil {
			return nil, err
		}
		e = NewGeminiEmbedder(cfg.BaseURL, key, cfg.Model, cfg.Dimensions, timeout)
	case "ollama":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, timeout)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfiguration, cfg.Provider)
	}
	if remote {
		e = NewLimitedEmbedder(e, ratelimit.New(limits.EmbedRPS, limits, ratelimit.WithLogger(logger)))
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	logger.Debug("embedder ready", zap.String("embedder", e.Name()), zap.Int("dimensions", e.Dimensions()))
	return e, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
