package server

import (
	"net/http"

	"github.com/hyperjump/kiku/internal/models"
)

// statusByKind maps error kinds to HTTP status codes.
var statusByKind = map[models.Kind]int{
	models.KindNotFound:             http.StatusNotFound,
	models.KindNotReady:             http.StatusConflict,
	models.KindInvalidInput:         http.StatusBadRequest,
	models.KindUnreadableDocument:   http.StatusUnprocessableEntity,
	models.KindInvalidConfiguration: http.StatusInternalServerError,
	models.KindEmbeddingProvider:    http.StatusBadGateway,
	models.KindGenerationFailed:     http.StatusBadGateway,
	models.KindNoContext:            http.StatusUnprocessableEntity,
	models.KindCanceled:             http.StatusGatewayTimeout,
}

// StatusFor returns the HTTP status for err's kind; unknown kinds are 500.
func StatusFor(err error) int {
	if code, ok := statusByKind[models.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Kind    models.Kind `json:"kind"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error    errorBody        `json:"error"`
	Document *models.Document `json:"document,omitempty"`
	Turn     *models.Answer   `json:"turn,omitempty"`
}
