// Package chat answers questions about a ready document: retrieve, assemble context,
// prompt and generate.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/generation"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/retrieval"
	"go.uber.org/zap"
)

// Retriever returns the chunks of a document ranked by similarity to a question.
type Retriever interface {
	Retrieve(ctx context.Context, id, question string, k int) ([]*models.ScoredChunk, error)
}

// Pipeline runs one chat turn at a time per call; calls may run concurrently.
type Pipeline struct {
	retriever    Retriever
	generator    generation.Generator
	history      *History
	maxContext   int
	historyTurns int
	failOnEmpty  bool
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for chat turns.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline returns a pipeline recording turns in history. cfg sets the context length limit,
// the number of earlier turns in the prompt and the empty-context policy.
func NewPipeline(retriever Retriever, generator generation.Generator, history *History, cfg config.RAGConfig, opts ...Option) (*Pipeline, error) {
	if cfg.MaxContextLength < 1 {
		return nil, fmt.Errorf("%w: max context length %d must be positive", models.ErrInvalidConfiguration, cfg.MaxContextLength)
	}
	if cfg.HistoryTurns < 0 {
		return nil, fmt.Errorf("%w: history turns %d must not be negative", models.ErrInvalidConfiguration, cfg.HistoryTurns)
	}
	var failOnEmpty bool
	switch cfg.EmptyContextPolicy {
	case "", config.PolicyDegrade:
	case config.PolicyFail:
		failOnEmpty = true
	default:
		return nil, fmt.Errorf("%w: unknown empty context policy %q", models.ErrInvalidConfiguration, cfg.EmptyContextPolicy)
	}
	if history == nil {
		history = NewHistory(0)
	}
	p := &Pipeline{
		retriever:    retriever,
		generator:    generator,
		history:      history,
		maxContext:   cfg.MaxContextLength,
		historyTurns: cfg.HistoryTurns,
		failOnEmpty:  failOnEmpty,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// History returns the pipeline's turn history.
func (p *Pipeline) History() *History {
	return p.history
}

// Answer runs one turn for question against document id.
//
// Requests that never reach the document (empty question, unknown or not ready document,
// cancellation) return only an error and are not recorded. Every other turn is recorded
// in the history; a failed turn is returned together with its error.
func (p *Pipeline) Answer(ctx context.Context, id, question string) (*models.ChatTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidInput)
	}
	start := p.now()
	turn := &models.ChatTurn{DocumentID: id, Question: question, CreatedAt: start}

	chunks, err := p.retriever.Retrieve(ctx, id, question, 0)
	if err != nil {
		if rejected(ctx, err) {
			return nil, err
		}
		return p.failed(turn, err)
	}

	c := retrieval.AssembleContext(chunks, p.maxContext)
	turn.Chunks = c.Used
	turn.ContextTruncated = c.Truncated || c.Dropped > 0
	if c.Empty() {
		if p.failOnEmpty {
			return p.failed(turn, fmt.Errorf("%w: no passage of document %s matched the question", models.ErrNoContext, id))
		}
		turn.ContextFree = true
	}

	prompt := BuildPrompt(c.Text, p.history.Recent(id, p.historyTurns), question)
	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return p.failed(turn, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err))
	}

	turn.Answer = answer
	turn.Outcome = models.OutcomeAnswered
	p.history.Append(turn)
	p.logger.Info("chat turn answered",
		zap.String("doc_id", id),
		zap.Int("chunks", len(turn.Chunks)),
		zap.Bool("context_free", turn.ContextFree),
		zap.Bool("context_truncated", turn.ContextTruncated),
		zap.Duration("duration", p.now().Sub(start)))
	return turn, nil
}

func (p *Pipeline) failed(turn *models.ChatTurn, err error) (*models.ChatTurn, error) {
	turn.Outcome = models.OutcomeFailed
	turn.FailureKind = models.KindOf(err)
	turn.FailureReason = err.Error()
	p.history.Append(turn)
	p.logger.Warn("chat turn failed",
		zap.String("doc_id", turn.DocumentID),
		zap.String("kind", string(turn.FailureKind)),
		zap.Error(err))
	return turn, err
}

// rejected reports whether err means the request never became a turn.
func rejected(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrNotReady) ||
		errors.Is(err, models.ErrInvalidInput)
}
