package ai

import (
	"context"

	"github.com/amishk599/jobrag/internal/model"
)

// NopGenerator is used when no generation backend is configured.
// It returns an empty completion without making any calls.
type NopGenerator struct{}

// NewNopGenerator returns a NopGenerator.
func NewNopGenerator() *NopGenerator {
	return &NopGenerator{}
}

// Generate returns an empty string.
func (n *NopGenerator) Generate(_ context.Context, _ string, _ model.GenerateParams) (string, error) {
	return "", nil
}
