package vector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/config"
)

// IndexType selects the vector index implementation.
type IndexType string

const (
	// IndexTypeMemory is the in-process brute-force index persisted to a local file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// New creates the index configured in cfg. A memory index is loaded from
// cfg.Storage.VectorIndexPath when the file exists.
func New(cfg *config.Config, logger *zap.Logger) (Index, error) {
	dims := cfg.Embedding.Dimensions
	switch IndexType(cfg.Vector.Type) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dims)
		if err != nil {
			return nil, err
		}
		if err := idx.Load(cfg.Storage.VectorIndexPath); err != nil {
			return nil, fmt.Errorf("load vector index: %w", err)
		}
		return idx, nil
	case IndexTypeQdrant:
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.Vector.Qdrant.Host,
			Port:       cfg.Vector.Qdrant.Port,
			Collection: cfg.Vector.Qdrant.Collection,
			Dimensions: dims,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, qdrant)", cfg.Vector.Type)
	}
}
