package retriever

import (
	"context"

	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/storage"
)

// StructuredRetriever looks up config entries and rules by keyword.
type StructuredRetriever struct {
	store storage.StructuredStore
	limit int
}

// NewStructuredRetriever returns at most limit records per query (3 when limit <= 0).
func NewStructuredRetriever(store storage.StructuredStore, limit int) *StructuredRetriever {
	if limit <= 0 {
		limit = 3
	}
	return &StructuredRetriever{store: store, limit: limit}
}

// Retrieve returns matching configs first, then rules.
func (r *StructuredRetriever) Retrieve(ctx context.Context, query string) ([]models.Record, error) {
	return r.store.Lookup(ctx, query, r.limit)
}
