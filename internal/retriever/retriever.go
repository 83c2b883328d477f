// Package retriever queries the three knowledge backends and returns typed records.
package retriever

import (
	"context"

	"github.com/hyperjump/kontext/internal/models"
)

// Retriever fetches records for a query from one backend.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.Record, error)
}

// Func adapts a function to Retriever.
type Func func(ctx context.Context, query string) ([]models.Record, error)

// Retrieve calls f.
func (f Func) Retrieve(ctx context.Context, query string) ([]models.Record, error) {
	return f(ctx, query)
}

// Set maps each backend to its retriever.
type Set map[models.Backend]Retriever
