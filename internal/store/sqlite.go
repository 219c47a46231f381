package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/jobrag/internal/model"
)

// SQLiteStore keeps documents and their embeddings in a SQLite database and
// answers queries with a brute-force cosine scan over the collection.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// documents table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		document   TEXT NOT NULL,
		metadata   TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert writes the whole batch in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, b model.Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert into %s: %w", collection, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert into %s: %w", collection, err)
	}
	defer stmt.Close()

	for i, id := range b.IDs {
		meta, err := json.Marshal(b.Metadatas[i])
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, id, b.Documents[i], string(meta), encodeEmbedding(b.Embeddings[i])); err != nil {
			return fmt.Errorf("upsert %s into %s: %w", id, collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert into %s: %w", collection, err)
	}
	return nil
}

// Query scores every document in the collection against embedding and returns
// the k best.
func (s *SQLiteStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]model.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, embedding FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var (
			r    model.SearchResult
			meta string
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Document, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", r.ID, err)
		}
		score, ok := cosine(embedding, vec)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		r.Score = score
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return topK(results, k), nil
}

// Count returns the number of documents stored in collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return n, nil
}

// PruneExpired deletes documents whose Expires midnight is before asOf.
func (s *SQLiteStore) PruneExpired(ctx context.Context, collection string, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND json_extract(metadata, '$.Expires') < ?`,
		collection, firstActiveDay(asOf).Format(model.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning expired documents in %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
