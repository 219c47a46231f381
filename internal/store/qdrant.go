package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobrag/internal/httpclient"
	"github.com/amishk599/jobrag/internal/model"
)

// pointNamespace derives Qdrant point ids, which must be UUIDs or integers,
// from batch-local document ids.
var pointNamespace = uuid.MustParse("6f1c2b0e-6a43-4d0b-9a2e-3c7e8f5b1d24")

// QdrantStore talks to Qdrant over its REST API. Collections are created with
// cosine distance on first upsert.
type QdrantStore struct {
	http   *httpclient.Client
	logger *slog.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// NewQdrantStore creates a store for the Qdrant instance at baseURL.
func NewQdrantStore(baseURL, apiKey string, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *QdrantStore {
	c := httpclient.New(baseURL, httpClient, timeout)
	if apiKey != "" {
		c.Headers["api-key"] = apiKey
	}
	return &QdrantStore{http: c, logger: logger, ready: make(map[string]bool)}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// PointID maps a document id to its Qdrant point id.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

func collectionPath(collection string) string {
	return "/collections/" + url.PathEscape(collection)
}

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	ok := s.ready[collection]
	s.mu.Unlock()
	if ok {
		return nil
	}

	_, err := s.http.Do(ctx, http.MethodGet, collectionPath(collection), nil)
	var httpErr *model.HTTPError
	switch {
	case err == nil:
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if _, err := s.http.Do(ctx, http.MethodPut, collectionPath(collection), body); err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
		s.logger.Info("created qdrant collection", "collection", collection, "dimension", dim)
	default:
		return fmt.Errorf("get collection %s: %w", collection, err)
	}

	s.mu.Lock()
	s.ready[collection] = true
	s.mu.Unlock()
	return nil
}

// Upsert writes all points of the batch in one request and waits for them to
// be applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, b model.Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, len(b.Embeddings[0])); err != nil {
		return err
	}

	points := make([]qdrantPoint, b.Len())
	for i, id := range b.IDs {
		meta := make(map[string]any, len(b.Metadatas[i]))
		for k, v := range b.Metadatas[i] {
			meta[k] = v
		}
		points[i] = qdrantPoint{
			ID:     PointID(id),
			Vector: b.Embeddings[i],
			Payload: map[string]any{
				"doc_id":   id,
				"document": b.Documents[i],
				"metadata": meta,
			},
		}
	}
	path := collectionPath(collection) + "/points?wait=true"
	if _, err := s.http.Do(ctx, http.MethodPut, path, map[string]any{"points": points}); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Query runs a vector search. A collection that does not exist yet has no
// matches.
func (s *QdrantStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]model.SearchResult, error) {
	req := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}
	var resp qdrantSearchResponse
	err := s.http.DoJSON(ctx, http.MethodPost, collectionPath(collection)+"/points/search", req, &resp)
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	results := make([]model.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		sr := model.SearchResult{Score: r.Score, Metadata: make(map[string]string)}
		if v, ok := r.Payload["doc_id"].(string); ok {
			sr.ID = v
		}
		if v, ok := r.Payload["document"].(string); ok {
			sr.Document = v
		}
		if meta, ok := r.Payload["metadata"].(map[string]any); ok {
			for k, v := range meta {
				if str, ok := v.(string); ok {
					sr.Metadata[k] = str
				} else if v != nil {
					sr.Metadata[k] = fmt.Sprint(v)
				}
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

// PruneExpired deletes points whose metadata.Expires midnight is before asOf.
// A missing collection prunes nothing.
func (s *QdrantStore) PruneExpired(ctx context.Context, collection string, asOf time.Time) (int64, error) {
	cutoff := firstActiveDay(asOf).Format(time.RFC3339)
	filter := map[string]any{
		"must": []any{
			map[string]any{"key": "metadata.Expires", "datetime_range": map[string]any{"lt": cutoff}},
		},
	}

	var count struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	err := s.http.DoJSON(ctx, http.MethodPost, collectionPath(collection)+"/points/count",
		map[string]any{"filter": filter, "exact": true}, &count)
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count expired in %s: %w", collection, err)
	}
	if count.Result.Count == 0 {
		return 0, nil
	}

	path := collectionPath(collection) + "/points/delete?wait=true"
	if _, err := s.http.Do(ctx, http.MethodPost, path, map[string]any{"filter": filter}); err != nil {
		return 0, fmt.Errorf("delete expired from %s: %w", collection, err)
	}
	return count.Result.Count, nil
}
