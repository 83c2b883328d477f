package retriever

import (
	"context"

	"github.com/hyperjump/kontext/internal/graph"
	"github.com/hyperjump/kontext/internal/models"
)

// relationalShown caps how many matched edges reach the context.
const relationalShown = 3

// RelationalRetriever finds graph edges whose endpoints or relation match the query.
type RelationalRetriever struct {
	graph *graph.Store
	limit int
}

// NewRelationalRetriever searches up to limit distinct edges (5 when limit <= 0) and keeps
// the first three.
func NewRelationalRetriever(g *graph.Store, limit int) *RelationalRetriever {
	if limit <= 0 {
		limit = 5
	}
	return &RelationalRetriever{graph: g, limit: limit}
}

// Retrieve returns Relationship records.
func (r *RelationalRetriever) Retrieve(ctx context.Context, query string) ([]models.Record, error) {
	rels := r.graph.FindRelationships(query, r.limit)
	if len(rels) > relationalShown {
		rels = rels[:relationalShown]
	}
	out := make([]models.Record, len(rels))
	for i, rel := range rels {
		out[i] = rel
	}
	return out, nil
}
