package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/ratelimit"
	"github.com/hyperjump/kiku/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextOf(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"before " + ContextBegin + "\n body \n" + ContextEnd + " after", "body"},
		{"no markers", ""},
		{ContextBegin + " unterminated", "unterminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContextOf(tt.prompt), "ContextOf(%q)", tt.prompt)
	}
}

func TestStaticGenerator(t *testing.T) {
	g := NewStaticGenerator(4)
	out, err := g.Generate(context.Background(), ContextBegin+"AAAA BBBB"+ContextEnd+"\nQuestion: q")
	require.NoError(t, err)
	assert.Regexp(t, `AAAA\.\.\.$`, out)

	out, err = g.Generate(context.Background(), "Question: q")
	require.NoError(t, err)
	assert.Contains(t, out, "no relevant passage")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "hello", req.Messages[0].Content)
		}
		assert.Equal(t, DefaultTemperature, req.Temperature)
		assert.Equal(t, 64, req.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" hi there \n"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL, "sk-test", "m", Options{MaxTokens: 64}, time.Second)
	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, "openai/m", g.Name())
}

func TestOpenAIGenerator_emptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIGenerator(srv.URL, "", "m", Options{}, time.Second).Generate(context.Background(), "x")
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultGeminiModel+":generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req gmRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) {
			assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
		}
		if assert.NotNil(t, req.GenerationConfig) {
			assert.Equal(t, 0.7, req.GenerationConfig.Temperature)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"part one, "},{"text":"part two"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiGenerator(srv.URL, "g-key", "", Options{Temperature: 0.7}, time.Second)
	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "part one, part two", out)
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, DefaultOllamaModel, req.Model)
		assert.Equal(t, "hello", req.Prompt)
		if assert.NotNil(t, req.Options) {
			assert.Equal(t, 32, req.Options.NumPredict)
		}
		_, _ = w.Write([]byte(`{"response":"answer","done":true}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "", Options{MaxTokens: 32}, time.Second)
	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, "ollama/"+DefaultOllamaModel, g.Name())
}

func TestLimitedGenerator_retriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	limits := config.LimitsConfig{Burst: 1, MaxRetries: 2, BaseDelayMillis: 1, MaxDelayMillis: 2}
	g := NewLimitedGenerator(NewOllamaGenerator(srv.URL, "m", Options{}, time.Second), ratelimit.New(0, limits))
	out, err := g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "ollama/m", g.Name())
}

func TestLimitedGenerator_givesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	limits := config.LimitsConfig{Burst: 1, MaxRetries: 1, BaseDelayMillis: 1, MaxDelayMillis: 2}
	g := NewLimitedGenerator(NewOllamaGenerator(srv.URL, "m", Options{}, time.Second), ratelimit.New(0, limits))
	_, err := g.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrRateLimited)
	var se *upstream.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew(t *testing.T) {
	limits := config.LimitsConfig{Burst: 1}
	g, err := New(config.GenerationConfig{Provider: "static"}, limits, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticGenerator{}, g)

	g, err = New(config.GenerationConfig{Provider: "ollama", Model: "m"}, limits, nil)
	require.NoError(t, err)
	assert.IsType(t, &LimitedGenerator{}, g, "remote providers are rate limited")

	_, err = New(config.GenerationConfig{Provider: "nope"}, limits, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(config.GenerationConfig{Provider: "gemini", APIKeyEnv: "KIKU_TEST_UNSET_KEY"}, limits, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration, "missing API key")
}
