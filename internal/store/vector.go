// Package store holds the vector-store collaborators that persist projected
// job documents with their embeddings and answer similarity queries.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/amishk599/jobrag/internal/model"
)

// Pruner deletes documents that are no longer open at asOf.
type Pruner interface {
	PruneExpired(ctx context.Context, collection string, asOf time.Time) (int64, error)
}

var (
	_ model.VectorStore = (*SQLiteStore)(nil)
	_ model.VectorStore = (*PostgresStore)(nil)
	_ model.VectorStore = (*QdrantStore)(nil)
	_ model.VectorStore = (*NopStore)(nil)

	_ Pruner = (*SQLiteStore)(nil)
	_ Pruner = (*PostgresStore)(nil)
	_ Pruner = (*QdrantStore)(nil)
)

// firstActiveDay is the earliest Expires date still open at asOf. Expires is
// midnight UTC of its day, so any time after midnight closes that day.
func firstActiveDay(asOf time.Time) time.Time {
	asOf = asOf.UTC()
	y, m, d := asOf.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if asOf.After(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// validateBatch enforces the upsert contract: every slice has the same length.
func validateBatch(b model.Batch) error {
	n := len(b.IDs)
	if len(b.Documents) != n || len(b.Metadatas) != n || len(b.Embeddings) != n {
		return fmt.Errorf("misaligned batch: %d ids, %d documents, %d metadatas, %d embeddings",
			n, len(b.Documents), len(b.Metadatas), len(b.Embeddings))
	}
	for i, id := range b.IDs {
		if id == "" {
			return fmt.Errorf("misaligned batch: empty id at %d", i)
		}
	}
	return nil
}

// encodeEmbedding packs v as little-endian IEEE 754 float32s.
func encodeEmbedding(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// cosine returns the cosine similarity of a and b, or false when it is
// undefined (dimension mismatch or a zero vector).
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// topK sorts results by descending score, keeping insertion order for ties,
// and truncates to k.
func topK(results []model.SearchResult, k int) []model.SearchResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
