package engine

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryConfig controls retries of idempotent engine calls.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	ShouldRetry func(error) bool
}

// WithRetry wraps e so that Status and Health are retried on transient
// failures. Step is never retried: a partially consumed stream may already
// have advanced the engine.
func WithRetry(e Engine, cfg RetryConfig) Engine {
	if e == nil {
		return nil
	}
	if cfg.MaxAttempts <= 1 {
		return e
	}
	return &retryEngine{next: e, cfg: cfg}
}

type retryEngine struct {
	next Engine
	cfg  RetryConfig
}

func (r *retryEngine) Step(ctx context.Context, threadID string, in Input) iter.Seq2[Update, error] {
	return r.next.Step(ctx, threadID, in)
}

func (r *retryEngine) Status(ctx context.Context, threadID string) (Status, error) {
	var st Status
	err := r.do(ctx, "status", func() error {
		var err error
		st, err = r.next.Status(ctx, threadID)
		return err
	})
	return st, err
}

func (r *retryEngine) Health(ctx context.Context) error {
	return r.do(ctx, "health", func() error { return r.next.Health(ctx) })
}

func (r *retryEngine) Close() {
	r.next.Close()
}

func (r *retryEngine) do(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var lastErr error
	delay := r.cfg.Backoff
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == r.cfg.MaxAttempts || !r.shouldRetry(ctx, err) {
			break
		}
		slog.Debug("retrying engine call", "op", op, "attempt", attempt, "error", err)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
			delay *= 2
		}
	}
	return lastErr
}

func (r *retryEngine) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if r.cfg.ShouldRetry != nil {
		return r.cfg.ShouldRetry(err)
	}
	return IsTransient(err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
		return true
	}
	return false
}
