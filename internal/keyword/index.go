// Package keyword provides BM25 keyword search over document chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kontext/internal/fusion"
)

// Doc is the indexed form of a chunk.
type Doc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title field.
	// Values <= 1 search title and content as one field.
	TitleBoost float64
}

// Index defines keyword search operations.
type Index interface {
	Index(ctx context.Context, id string, doc Doc) error
	IndexBatch(ctx context.Context, docs map[string]Doc) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]fusion.Scored, error)
	Delete(ctx context.Context, ids ...string) error
	DocCount() (uint64, error)
	Close() error
}
