package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kontext/internal/fusion"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. If the mapping changes in code,
// remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemBleveIndex creates an index that lives only in memory.
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// CJK bigrams so Chinese phrases match without a dictionary; Latin text is lowercased
	// and left unstemmed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = cjk.AnalyzerName
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = cjk.AnalyzerName
	return im
}

// Index indexes a chunk by id.
func (b *BleveIndex) Index(ctx context.Context, id string, doc Doc) error {
	return b.index.Index(id, doc)
}

// IndexBatch indexes several chunks in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs map[string]Doc) error {
	batch := b.index.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", id, err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a match query and returns up to limit hits, best first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]fusion.Scored, error) {
	if limit <= 0 {
		return nil, nil
	}
	if opts != nil && opts.TitleBoost > 1 {
		return b.searchWithTitleBoost(ctx, query, limit, opts.TitleBoost)
	}
	hits, err := b.run(ctx, bleve.NewMatchQuery(query), limit)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// searchWithTitleBoost runs title and content queries separately and adds the scores.
func (b *BleveIndex) searchWithTitleBoost(ctx context.Context, query string, limit int, titleBoost float64) ([]fusion.Scored, error) {
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	tq := bleve.NewMatchQuery(query)
	tq.SetField("title")
	cq := bleve.NewMatchQuery(query)
	cq.SetField("content")

	titleHits, err := b.run(ctx, tq, reqSize)
	if err != nil {
		return nil, err
	}
	contentHits, err := b.run(ctx, cq, reqSize)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(titleHits)+len(contentHits))
	for _, h := range titleHits {
		scores[h.ID] += h.Score * titleBoost
	}
	for _, h := range contentHits {
		scores[h.ID] += h.Score
	}
	merged := make([]fusion.Scored, 0, len(scores))
	for id, s := range scores {
		merged = append(merged, fusion.Scored{ID: id, Score: s})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int) ([]fusion.Scored, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]fusion.Scored, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = fusion.Scored{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes chunks from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 1 {
		return b.index.Delete(ids[0])
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
