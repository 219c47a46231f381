package store

import (
	"context"

	"github.com/amishk599/jobrag/internal/model"
)

// NopStore is a no-op store used in dry-run mode. Upserts are validated and
// then discarded, and queries never match.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) Upsert(_ context.Context, _ string, b model.Batch) error {
	return validateBatch(b)
}

func (s *NopStore) Query(context.Context, string, []float32, int) ([]model.SearchResult, error) {
	return nil, nil
}
