// Package ratelimit spaces out calls to remote collaborators.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/jobrag/internal/model"
)

// Limiter enforces a minimum delay between calls that share a key, such as
// "embedder" or "generator".
type Limiter struct {
	mu        sync.Mutex
	lastCall  map[string]time.Time
	minDelay  time.Duration
	overrides map[string]time.Duration
}

// NewLimiter creates a limiter that enforces minDelay between consecutive
// calls with the same key. overrides replaces minDelay for individual keys.
func NewLimiter(minDelay time.Duration, overrides map[string]time.Duration) *Limiter {
	return &Limiter{
		lastCall:  make(map[string]time.Time),
		minDelay:  minDelay,
		overrides: overrides,
	}
}

func (l *Limiter) delayFor(key string) time.Duration {
	if d, ok := l.overrides[key]; ok {
		return d
	}
	return l.minDelay
}

// Wait blocks until enough time has passed since the last call with key.
// Returns an error if the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	delay := l.delayFor(key)

	l.mu.Lock()
	last, ok := l.lastCall[key]
	now := time.Now()

	if !ok || now.Sub(last) >= delay {
		l.lastCall[key] = now
		l.mu.Unlock()
		return nil
	}

	// Reserve the next slot so concurrent callers queue behind each other.
	next := last.Add(delay)
	l.lastCall[key] = next
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-time.After(time.Until(next)):
	}
	return nil
}

// Embedder waits on the limiter before delegating to the wrapped embedder.
type Embedder struct {
	inner   model.Embedder
	limiter *Limiter
	key     string
}

// NewEmbedder wraps an Embedder with rate limiting under key.
func NewEmbedder(inner model.Embedder, limiter *Limiter, key string) *Embedder {
	return &Embedder{inner: inner, limiter: limiter, key: key}
}

// Embed waits for the limiter, then delegates.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx, e.key); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, texts)
}

// Generator waits on the limiter before delegating to the wrapped generator.
type Generator struct {
	inner   model.Generator
	limiter *Limiter
	key     string
}

// NewGenerator wraps a Generator with rate limiting under key.
func NewGenerator(inner model.Generator, limiter *Limiter, key string) *Generator {
	return &Generator{inner: inner, limiter: limiter, key: key}
}

// Generate waits for the limiter, then delegates.
func (g *Generator) Generate(ctx context.Context, prompt string, params model.GenerateParams) (string, error) {
	if err := g.limiter.Wait(ctx, g.key); err != nil {
		return "", err
	}
	return g.inner.Generate(ctx, prompt, params)
}
