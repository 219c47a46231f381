package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/amishk599/jobrag/internal/model"
)

// PostgresStore keeps documents in Postgres with a pgvector embedding column
// and ranks them with the cosine distance operator.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// ensures the vector extension and documents table exist.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	for _, stmt := range []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS job_documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			document   TEXT NOT NULL,
			metadata   JSONB NOT NULL,
			embedding  vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating job_documents schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

const upsertDocument = `INSERT INTO job_documents (collection, id, document, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5::text::vector)
	ON CONFLICT (collection, id) DO UPDATE SET
		document = EXCLUDED.document,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding`

// Upsert sends the batch as one pgx batch inside a transaction.
func (s *PostgresStore) Upsert(ctx context.Context, collection string, b model.Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, id := range b.IDs {
		meta, err := json.Marshal(b.Metadatas[i])
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", id, err)
		}
		batch.Queue(upsertDocument, collection, id, b.Documents[i], meta, pgvector.NewVector(b.Embeddings[i]))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert %d documents into %s: %w", b.Len(), collection, err)
	}
	return nil
}

// Query returns the k nearest documents by cosine distance. Score is cosine
// similarity.
func (s *PostgresStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]model.SearchResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, document, metadata, 1 - (embedding <=> $2::text::vector) AS score
		FROM job_documents
		WHERE collection = $1
		ORDER BY embedding <=> $2::text::vector
		LIMIT $3`, collection, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var (
			r    model.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.Document, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return results, nil
}

// PruneExpired deletes documents whose Expires midnight is before asOf.
func (s *PostgresStore) PruneExpired(ctx context.Context, collection string, asOf time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM job_documents WHERE collection = $1 AND metadata->>'Expires' < $2`,
		collection, firstActiveDay(asOf).Format(model.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning expired documents in %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
