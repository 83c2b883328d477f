package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/cache"
	"github.com/hyperjump/kontext/internal/compress"
	"github.com/hyperjump/kontext/internal/config"
	"github.com/hyperjump/kontext/internal/embedding"
	"github.com/hyperjump/kontext/internal/fusion"
	"github.com/hyperjump/kontext/internal/graph"
	"github.com/hyperjump/kontext/internal/indexer"
	"github.com/hyperjump/kontext/internal/keyword"
	"github.com/hyperjump/kontext/internal/llm"
	"github.com/hyperjump/kontext/internal/memory"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/prompt"
	"github.com/hyperjump/kontext/internal/retriever"
	"github.com/hyperjump/kontext/internal/router"
	"github.com/hyperjump/kontext/internal/storage"
	"github.com/hyperjump/kontext/internal/vector"
	"github.com/hyperjump/kontext/internal/watcher"
	"github.com/hyperjump/kontext/pkg/utils"
)

// System holds the pipeline together with the stores it reads, so callers can also write
// to them (ingest, config, graph edits, cache maintenance).
type System struct {
	Pipeline *Pipeline
	Storage  *storage.SQLiteStorage
	Graph    *graph.Store
	Indexer  *indexer.Indexer
	Vectors  vector.Index
	Cache    *cache.Cache
	Memory   *memory.Store

	cfg      *config.Config
	logger   *zap.Logger
	closers  []func() error
	watchers []*watcher.Watcher
}

// Open builds every component described by cfg. The returned System must be closed.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*System, error) {
	logger = utils.OrNop(logger)
	s := &System{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	s.Storage = store
	s.closers = append(s.closers, store.Close)

	s.Graph, err = graph.Open(cfg.Storage.GraphPath, graph.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, emb.Close)

	vec, err := vector.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.Vectors = vec
	s.closers = append(s.closers, vec.Close)

	kw, err := keyword.NewBleveIndex(cfg.Storage.DocumentIndexPath)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, kw.Close)

	s.Indexer = indexer.NewIndexer(store, emb, vec, kw,
		indexer.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		indexer.WithLogger(logger),
		indexer.WithVectorPath(cfg.Storage.VectorIndexPath),
	)

	retrievers := retriever.Set{
		models.BackendSemantic: retriever.NewDocumentRetriever(store, emb, vec, kw, retriever.DocumentOptions{
			K:              cfg.Retrieval.SemanticK,
			KeywordWeight:  cfg.Retrieval.KeywordWeight,
			SemanticWeight: cfg.Retrieval.SemanticWeight,
		}, logger),
		models.BackendStructured: retriever.NewStructuredRetriever(store, cfg.Retrieval.StructuredLimit),
		models.BackendRelational: retriever.NewRelationalRetriever(s.Graph, cfg.Retrieval.RelationalLimit),
	}

	rt, err := newRouter(ctx, cfg.Router, emb, logger)
	if err != nil {
		return nil, err
	}

	s.Cache, err = NewCache(cfg, store, s.Graph, logger)
	if err != nil {
		return nil, err
	}

	s.Memory, err = memory.New(cfg.Storage.MemoryDir,
		memory.WithWindow(cfg.Memory.WindowSize),
		memory.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	est, err := compress.NewEstimator(cfg.Compressor.Estimator)
	if err != nil {
		return nil, err
	}

	weights, err := backendWeights(cfg.Fusion.Weights)
	if err != nil {
		return nil, fmt.Errorf("fusion weights: %w", err)
	}

	opts := []Option{
		WithLogger(logger),
		WithTokenBudget(cfg.Compressor.TokenBudget),
		WithMaxLength(cfg.Prompt.MaxLength),
		WithRecentTurns(cfg.Memory.RecentTurns),
	}
	if cfg.Prompt.Variant != "" {
		v, err := prompt.ParseVariant(cfg.Prompt.Variant)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithVariant(v))
	}

	s.Pipeline = NewPipeline(s.Memory, rt, s.Cache, retrievers,
		fusion.New(fusion.Config{
			TopUnconditional: cfg.Fusion.TopUnconditional,
			DiversityWindow:  cfg.Fusion.DiversityWindow,
			MaxItems:         cfg.Fusion.MaxItems,
			Weights:          weights,
		}),
		compress.New(est),
		opts...,
	)
	ok = true
	return s, nil
}

func newRouter(ctx context.Context, cfg config.RouterConfig, emb embedding.Embedder, logger *zap.Logger) (*router.Router, error) {
	examples, err := router.ExamplesFromLabels(cfg.Examples)
	if err != nil {
		return nil, fmt.Errorf("router examples: %w", err)
	}
	opts := []router.Option{router.WithLogger(logger), router.WithThreshold(cfg.Threshold)}
	if cfg.Classifier.EnabledOrDefault() {
		opts = append(opts, router.WithClassifier(llm.NewOllamaClassifier(
			cfg.Classifier.URL,
			cfg.Classifier.Timeout,
			llm.WithModel(cfg.Classifier.Model),
			llm.WithLogger(logger),
		)))
	}
	return router.New(ctx, emb, examples, opts...)
}

// NewCache opens the retrieval cache with the configured backends. Structured and semantic
// entries are invalidated by store writes, relational entries by graph file changes.
func NewCache(cfg *config.Config, store *storage.SQLiteStorage, g *graph.Store, logger *zap.Logger) (*cache.Cache, error) {
	backends := make([]models.Backend, 0, len(cfg.Cache.Backends))
	for _, name := range cfg.Cache.Backends {
		b, err := models.ParseBackend(name)
		if err != nil {
			return nil, fmt.Errorf("cache backends: %w", err)
		}
		backends = append(backends, b)
	}
	storeFingerprint := func(b models.Backend) cache.Fingerprint {
		return cache.FingerprintFunc(func() (time.Time, error) {
			return store.LastModified(context.Background(), b)
		})
	}
	return cache.New(cfg.Storage.CacheDir, cfg.Cache.TTL,
		cache.WithBackends(backends...),
		cache.WithFingerprint(models.BackendSemantic, storeFingerprint(models.BackendSemantic)),
		cache.WithFingerprint(models.BackendStructured, storeFingerprint(models.BackendStructured)),
		cache.WithFingerprint(models.BackendRelational, g),
		cache.WithLogger(logger),
	)
}

func backendWeights(in map[string]float64) (map[models.Backend]float64, error) {
	out := make(map[models.Backend]float64, len(in))
	for name, w := range in {
		b, err := models.ParseBackend(name)
		if err != nil {
			return nil, err
		}
		out[b] = w
	}
	return out, nil
}

// Watch starts the file watchers: the graph file is reloaded when replaced or rewritten, and
// each configured document directory is mirrored into the semantic store. Files already
// present are indexed once at start. Watchers stop on Close.
func (s *System) Watch(ctx context.Context) error {
	opts := []watcher.Option{
		watcher.WithLogger(s.logger),
		watcher.WithDebounce(s.cfg.Watch.Debounce),
	}

	gw := watcher.WatchFile(s.Graph.Path(), func(path string) {
		if err := s.Graph.Reload(); err != nil {
			s.logger.Warn("graph reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		s.logger.Info("graph reloaded", zap.String("path", path))
	}, opts...)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("watch graph: %w", err)
	}
	s.watchers = append(s.watchers, gw)

	if len(s.cfg.Watch.Dirs) == 0 {
		return nil
	}
	dw := watcher.NewWatcher(s.cfg.Watch.Dirs, s.cfg.Watch.Extensions, true,
		func(path string) { s.syncFile(ctx, path) },
		func(path string) { s.removeFile(ctx, path) },
		opts...,
	)
	if err := dw.Start(ctx); err != nil {
		return fmt.Errorf("watch documents: %w", err)
	}
	s.watchers = append(s.watchers, dw)
	dw.SyncExistingFiles()
	return nil
}

func (s *System) syncFile(ctx context.Context, path string) {
	skipped, err := s.Indexer.IndexFile(ctx, path)
	if err != nil {
		s.logger.Warn("index file failed", zap.String("path", path), zap.Error(err))
		return
	}
	if skipped {
		return
	}
	s.logger.Info("indexed file", zap.String("path", path))
	if err := s.Indexer.Flush(); err != nil {
		s.logger.Warn("flush vector index failed", zap.Error(err))
	}
}

func (s *System) removeFile(ctx context.Context, path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	err := s.Indexer.DeleteDocument(ctx, indexer.FileDocID(path))
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("remove file from index failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Info("removed file from index", zap.String("path", path))
	if err := s.Indexer.Flush(); err != nil {
		s.logger.Warn("flush vector index failed", zap.Error(err))
	}
}

// Close stops the watchers, saves the vector index and releases every store.
func (s *System) Close() error {
	for _, w := range s.watchers {
		w.Stop()
	}
	s.watchers = nil

	var errs []error
	if s.Indexer != nil {
		if err := s.Indexer.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
