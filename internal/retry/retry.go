// Package retry holds decorators that retry transient collaborator failures.
// The ingestion core never retries on its own; deployments opt in by wrapping
// collaborators here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/amishk599/jobrag/internal/model"
)

// Policy retries transient failures with exponential backoff and jitter.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// Do calls fn, retrying while the error is transient and attempts remain.
// maxRetries is the number of additional attempts after the first failure.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !isRetryable(err) {
		return v, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		p.Logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) {
			return v, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 and 5xx are retryable; any other 4xx is not.
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Non-HTTP errors (network, DNS) are retryable.
	return true
}

// Embedder retries a wrapped model.Embedder.
type Embedder struct {
	inner  model.Embedder
	policy Policy
}

// NewEmbedder wraps an Embedder with retry logic. maxRetries of 0 disables
// retrying.
func NewEmbedder(inner model.Embedder, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Embedder {
	return &Embedder{inner: inner, policy: Policy{MaxRetries: maxRetries, BaseDelay: baseDelay, Logger: logger}}
}

// Embed delegates to the wrapped embedder, retrying transient errors.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return Do(ctx, e.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return e.inner.Embed(ctx, texts)
	})
}

// Generator retries a wrapped model.Generator.
type Generator struct {
	inner  model.Generator
	policy Policy
}

// NewGenerator wraps a Generator with retry logic.
func NewGenerator(inner model.Generator, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Generator {
	return &Generator{inner: inner, policy: Policy{MaxRetries: maxRetries, BaseDelay: baseDelay, Logger: logger}}
}

// Generate delegates to the wrapped generator, retrying transient errors.
func (g *Generator) Generate(ctx context.Context, prompt string, params model.GenerateParams) (string, error) {
	return Do(ctx, g.policy, "generate", func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, prompt, params)
	})
}
