package models

import (
	"context"
	"errors"
)

// Error taxonomy. Every failure leaving the core wraps exactly one of these.
var (
	// ErrUnreadableDocument means extraction produced nothing usable. Terminal for the document.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrInvalidConfiguration means chunking or retrieval parameters are out of range.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingProvider means the embedding capability failed or returned unusable vectors.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrGenerationFailed means the answer generator failed for one chat turn.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrNotFound means the document identifier is unknown.
	ErrNotFound = errors.New("not found")

	// ErrNotReady means the document exists but is not queryable.
	ErrNotReady = errors.New("not ready")

	// ErrEmptyIndex means a vector index was queried before build or holds no entries.
	ErrEmptyIndex = errors.New("empty index")

	// ErrAlreadyBuilt means Build was called twice on the same vector index.
	ErrAlreadyBuilt = errors.New("index already built")

	// ErrNoContext means retrieval produced no context and the pipeline is configured to fail.
	ErrNoContext = errors.New("no context")

	// ErrInvalidInput means a request was malformed (empty question, non-PDF upload).
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited means an external capability refused the call due to quota.
	ErrRateLimited = errors.New("rate limited")
)

// Kind is the wire name of an error class.
type Kind string

const (
	KindUnreadableDocument   Kind = "UnreadableDocument"
	KindInvalidConfiguration Kind = "InvalidConfiguration"
	KindEmbeddingProvider    Kind = "EmbeddingProviderError"
	KindGenerationFailed     Kind = "GenerationFailed"
	KindNotFound             Kind = "NotFound"
	KindNotReady             Kind = "NotReady"
	KindEmptyIndex           Kind = "EmptyIndex"
	KindAlreadyBuilt         Kind = "AlreadyBuilt"
	KindNoContext            Kind = "NoContext"
	KindInvalidInput         Kind = "InvalidInput"
	KindCanceled             Kind = "Canceled"
	KindInternal             Kind = "Internal"
)

// KindOf classifies err by the first taxonomy sentinel it wraps. Classification only relies
// on errors.Is, never on message text. Operation kinds win over cancellation so that a
// cancelled embedding call still reports as an embedding failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, ErrUnreadableDocument):
		return KindUnreadableDocument
	case errors.Is(err, ErrEmbeddingProvider):
		return KindEmbeddingProvider
	case errors.Is(err, ErrGenerationFailed):
		return KindGenerationFailed
	case errors.Is(err, ErrNoContext):
		return KindNoContext
	case errors.Is(err, ErrEmptyIndex):
		return KindEmptyIndex
	case errors.Is(err, ErrAlreadyBuilt):
		return KindAlreadyBuilt
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
