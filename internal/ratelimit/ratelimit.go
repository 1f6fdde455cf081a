// Package ratelimit throttles and retries calls to external embedding and generation
// providers. It is the only place retries happen.
package ratelimit

import (
	"context"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/upstream"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter combines a token bucket with exponential backoff on retryable errors.
type Limiter struct {
	bucket     *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets a logger for retry events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Limiter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a limiter allowing rps requests per second (rps <= 0 means unlimited) with
// the burst and retry policy from limits.
func New(rps float64, limits config.LimitsConfig, opts ...Option) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := limits.Burst
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		bucket:     rate.NewLimiter(limit, burst),
		maxRetries: limits.MaxRetries,
		baseDelay:  time.Duration(limits.BaseDelayMillis) * time.Millisecond,
		maxDelay:   time.Duration(limits.MaxDelayMillis) * time.Millisecond,
		logger:     zap.NewNop(),
		sleep:      sleepContext,
	}
	if l.baseDelay <= 0 {
		l.baseDelay = 200 * time.Millisecond
	}
	if l.maxDelay < l.baseDelay {
		l.maxDelay = l.baseDelay
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Do runs fn after taking a token, retrying up to maxRetries times while the error is
// retryable. Each attempt waits for a fresh token. Returns the last error.
func (l *Limiter) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := l.bucket.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= l.maxRetries || !upstream.Retryable(err) {
			return err
		}
		delay := l.Backoff(attempt)
		if ra := upstream.RetryAfter(err); ra > delay {
			delay = min(ra, l.maxDelay)
		}
		l.logger.Debug("retrying upstream call",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Backoff returns the delay before retry number attempt+1: baseDelay doubled per attempt,
// capped at maxDelay.
func (l *Limiter) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return l.maxDelay
	}
	d := l.baseDelay << attempt
	if d > l.maxDelay || d <= 0 {
		d = l.maxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
