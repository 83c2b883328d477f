package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/embedding"
	"github.com/hyperjump/kontext/internal/fusion"
	"github.com/hyperjump/kontext/internal/keyword"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/storage"
	"github.com/hyperjump/kontext/internal/vector"
)

// DocumentOptions tunes hybrid document retrieval.
type DocumentOptions struct {
	K              int
	Candidates     int
	KeywordWeight  float64
	SemanticWeight float64
}

// DefaultDocumentOptions returns k=3 with a 0.3/0.7 keyword/semantic split.
func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{K: 3, Candidates: 20, KeywordWeight: 0.3, SemanticWeight: 0.7}
}

// DocumentRetriever is the semantic backend: vector and keyword search over document
// chunks, fused and reranked.
type DocumentRetriever struct {
	store    storage.DocumentStore
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index
	opts     DocumentOptions
	logger   *zap.Logger
}

// NewDocumentRetriever wires the semantic backend. keywords may be nil for vector-only search.
func NewDocumentRetriever(
	store storage.DocumentStore,
	embedder embedding.Embedder,
	vectors vector.Index,
	keywords keyword.Index,
	opts DocumentOptions,
	logger *zap.Logger,
) *DocumentRetriever {
	def := DefaultDocumentOptions()
	if opts.K <= 0 {
		opts.K = def.K
	}
	if opts.Candidates < opts.K {
		opts.Candidates = max(def.Candidates, opts.K)
	}
	if opts.KeywordWeight == 0 && opts.SemanticWeight == 0 {
		opts.KeywordWeight, opts.SemanticWeight = def.KeywordWeight, def.SemanticWeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentRetriever{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns up to K DocumentHits, best first.
func (r *DocumentRetriever) Retrieve(ctx context.Context, query string) ([]models.Record, error) {
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	semantic, err := r.vectors.Search(ctx, qvec, r.opts.Candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	semScored := make([]fusion.Scored, len(semantic))
	for i, s := range semantic {
		semScored[i] = fusion.Scored{ID: s.ID, Score: s.Score}
	}

	var kwScored []fusion.Scored
	if r.keywords != nil {
		kwScored, err = r.keywords.Search(ctx, query, r.opts.Candidates, nil)
		if err != nil {
			r.logger.Warn("keyword search failed, using vector results only", zap.Error(err))
			kwScored = nil
		}
	}

	fused := fusion.Hybrid(
		fusion.NormalizeByMax(kwScored),
		fusion.ToMap(semScored),
		r.opts.KeywordWeight,
		r.opts.SemanticWeight,
	)
	hits := make([]models.DocumentHit, 0, len(fused))
	for _, f := range fused {
		if len(hits) == r.opts.Candidates {
			break
		}
		chunk, err := r.store.GetChunk(ctx, f.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("load chunk %s: %w", f.ID, err)
			}
			r.logger.Debug("index references missing chunk", zap.String("chunk_id", f.ID))
			continue
		}
		hits = append(hits, models.DocumentHit{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Score:      f.Score,
		})
	}
	hits = Rerank(hits, r.opts.K)

	out := make([]models.Record, len(hits))
	for i, h := range hits {
		out[i] = h
	}
	return out, nil
}

// Rerank orders hits by score, keeps the top k and marks them reranked.
func Rerank(hits []models.DocumentHit, k int) []models.DocumentHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Reranked = true
	}
	return hits
}
