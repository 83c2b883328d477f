package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes embeddings by exact text in a bounded LRU.
type CachedEmbedder struct {
	Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps base with an LRU of the given size.
func NewCachedEmbedder(base Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be greater than zero")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CachedEmbedder{Embedder: base, cache: cache}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return cloneVector(v), nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, cloneVector(v))
	return v, nil
}

// EmbedBatch embeds only the texts that are not cached, once per distinct text.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			results[i] = cloneVector(v)
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}
	embedded, err := c.Embedder.EmbedBatch(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(order) {
		return nil, fmt.Errorf("received %d embeddings for %d texts", len(embedded), len(order))
	}
	for i, text := range order {
		for _, idx := range missing[text] {
			results[idx] = cloneVector(embedded[i])
		}
		c.cache.Add(text, cloneVector(embedded[i]))
	}
	return results, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
