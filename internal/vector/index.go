// Package vector stores document chunk embeddings and answers nearest-neighbour queries.
package vector

import "context"

// Index defines vector storage and similarity search over chunk ids.
type Index interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Remove(ctx context.Context, ids []string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// Persistent is implemented by indices that keep their state in a local file.
type Persistent interface {
	Save(path string) error
	Load(path string) error
}

// Result is a single search hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity
}
