// Package embedding turns text into vectors for routing and semantic retrieval.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/config"
	"github.com/hyperjump/kontext/pkg/utils"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder configured in cfg, wrapped in an LRU cache when cache_size > 0.
// The mock provider is the zero-config default; it is logged at Warn because its vectors
// carry no meaning, so routing and semantic ranking are arbitrary.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	var base Embedder
	switch cfg.Provider {
	case "mock", "":
		logger.Warn("mock embedder in use; routing and semantic ranking ignore meaning, set embedding.provider to http",
			zap.Int("dimensions", cfg.Dimensions))
		base = NewMockEmbedder(cfg.Dimensions)
	case "http":
		base = NewHTTPEmbedder(cfg.URL, cfg.Model, cfg.Dimensions, cfg.Timeout, WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, http)", cfg.Provider)
	}
	if cfg.CacheSize <= 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, cfg.CacheSize)
}
