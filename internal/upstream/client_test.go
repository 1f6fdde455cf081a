package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	c.SetHeader("Authorization", "Bearer k")
	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "/v1/echo", map[string]string{"a": "b"}, &out))
	assert.Equal(t, "ok", out.Value)
}

func TestClient_PostJSON_statusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).PostJSON(context.Background(), "/", struct{}{}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, 2*time.Second, se.RetryAfter)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.True(t, Retryable(err))
	assert.Equal(t, 2*time.Second, RetryAfter(err))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"server error", &StatusError{Code: 503}, true},
		{"bad request", &StatusError{Code: 400}, false},
		{"transport", &TransportError{Err: errors.New("reset")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("KIKU_TEST_KEY", "secret")
	k, err := APIKey("KIKU_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "secret", k)

	k, err = APIKey("")
	require.NoError(t, err)
	assert.Empty(t, k)

	_, err = APIKey("KIKU_TEST_KEY_UNSET")
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
