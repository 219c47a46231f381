package model

import "context"

// Embedder turns texts into vectors. Output index i corresponds to input index i.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists embeddings under a named collection and answers
// similarity queries against it.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, batch Batch) error
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]SearchResult, error)
}

// GenerateParams tunes a single generation call.
type GenerateParams struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerateParams) (string, error)
}

// Cache stores serialized query responses. Generation counters let writers
// invalidate every cached entry of a collection at once.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Generation(ctx context.Context, collection string) (int64, error)
	Bump(ctx context.Context, collection string) error
}

// Notifier reports completed ingestion batches.
type Notifier interface {
	Notify(report IngestReport) error
}
