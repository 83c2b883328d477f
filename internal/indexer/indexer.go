package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/embedding"
	"github.com/hyperjump/kontext/internal/keyword"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/storage"
	"github.com/hyperjump/kontext/internal/vector"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"

	fileIDPrefix = "file:"
)

// Indexer writes documents to storage, the vector index and the keyword index.
type Indexer struct {
	storage      storage.DocumentStore
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	chunker      *Chunker
	vectorPath   string
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithVectorPath sets where a file-backed vector index is saved by Flush.
func WithVectorPath(path string) Option {
	return func(idx *Indexer) { idx.vectorPath = path }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.DocumentStore,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	chunker *Chunker,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		chunker:      chunker,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// FileDocID returns a stable document id for a file path.
func FileDocID(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return fileIDPrefix + hex.EncodeToString(hash[:])
}

// IndexDocument stores, chunks, embeds and indexes a document. Re-indexing an existing id
// replaces the old version.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	} else if err := idx.DeleteDocument(ctx, input.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	doc := &models.Document{
		ID:       input.ID,
		Title:    input.Title,
		Content:  Preprocess(input.Content),
		Metadata: input.Metadata,
	}
	if doc.Content == "" {
		return nil, fmt.Errorf("document %s has no content", doc.ID)
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	chunks := idx.chunker.Chunk(doc.ID, doc.Content)
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
		ids[i] = ch.ID
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.vectorIndex.Upsert(ctx, ids, embeddings); err != nil {
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}
	title := normalizeTitle(doc.Title)
	docs := make(map[string]keyword.Doc, len(chunks))
	for _, ch := range chunks {
		docs[ch.ID] = keyword.Doc{Title: title, Content: ch.Content}
	}
	if err := idx.keywordIndex.IndexBatch(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to index keywords: %w", err)
	}
	idx.logger.Debug("document indexed", zap.String("id", doc.ID), zap.Int("chunks", len(chunks)))
	return doc, nil
}

// IndexFile reads a plain-text file and indexes it under FileDocID(path). A file already
// indexed with the same mtime and size is skipped; skipped reports that case.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (skipped bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := FileDocID(absPath)
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return true, nil
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("read file: %w", err)
	}
	_, err = idx.IndexDocument(ctx, &models.DocumentInput{
		ID:      docID,
		Title:   filepath.Base(absPath),
		Content: string(content),
		Metadata: map[string]interface{}{
			metaKeySourcePath: absPath,
			// Strings avoid float64 precision loss in JSON (UnixNano exceeds 53 bits).
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
	return false, err
}

func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IndexDirectory indexes every regular file under dir whose extension is in exts
// (all files when exts is empty). It returns the number of files (re)indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, exts []string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), exts) {
			return nil
		}
		skipped, err := idx.IndexFile(ctx, path)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		if !skipped {
			n++
		}
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document and its chunks from storage and both indices.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		return err
	}
	chunks, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if len(chunkIDs) > 0 {
		if err := idx.keywordIndex.Delete(ctx, chunkIDs...); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
		if err := idx.vectorIndex.Remove(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete from vector index: %w", err)
		}
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("document deleted", zap.String("id", id), zap.Int("chunks", len(chunkIDs)))
	return nil
}

// Flush saves a file-backed vector index. Remote indices need no flush.
func (idx *Indexer) Flush() error {
	p, ok := idx.vectorIndex.(vector.Persistent)
	if !ok || idx.vectorPath == "" {
		return nil
	}
	if err := p.Save(idx.vectorPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}
