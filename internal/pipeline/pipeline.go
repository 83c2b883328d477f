// Package pipeline orchestrates one retrieval request: memory, routing, cache or backend
// retrieval, fusion, compression and prompt assembly.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/cache"
	"github.com/hyperjump/kontext/internal/compress"
	"github.com/hyperjump/kontext/internal/fusion"
	"github.com/hyperjump/kontext/internal/memory"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/prompt"
	"github.com/hyperjump/kontext/internal/retriever"
)

const (
	// DefaultTokenBudget is the compressor budget for retrieved context.
	DefaultTokenBudget = 1500
	// DefaultRecentTurns is how many turns of short-term memory go into the prompt.
	DefaultRecentTurns = 3
)

// Router picks a backend for a question.
type Router interface {
	Route(ctx context.Context, query string) models.RouteDecision
}

// Pipeline runs questions through the retrieval stages.
type Pipeline struct {
	memory     *memory.Store
	router     Router
	cache      *cache.Cache
	retrievers retriever.Set
	fusion     *fusion.Engine
	compressor *compress.Compressor

	tokenBudget int
	maxLength   int
	recentTurns int
	variant     prompt.Variant
	logger      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTokenBudget sets the compressor budget.
func WithTokenBudget(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.tokenBudget = n
		}
	}
}

// WithMaxLength sets the final prompt limit in characters.
func WithMaxLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxLength = n
		}
	}
}

// WithRecentTurns sets how many recent turns are rendered as short-term memory.
func WithRecentTurns(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.recentTurns = n
		}
	}
}

// WithVariant pins the prompt template instead of choosing by short-term memory.
func WithVariant(v prompt.Variant) Option {
	return func(p *Pipeline) { p.variant = v }
}

// NewPipeline wires the stages. c may be nil to disable caching.
func NewPipeline(
	mem *memory.Store,
	router Router,
	c *cache.Cache,
	retrievers retriever.Set,
	fusionEngine *fusion.Engine,
	compressor *compress.Compressor,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		memory:      mem,
		router:      router,
		cache:       c,
		retrievers:  retrievers,
		fusion:      fusionEngine,
		compressor:  compressor,
		tokenBudget: DefaultTokenBudget,
		maxLength:   prompt.DefaultMaxLength,
		recentTurns: DefaultRecentTurns,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process never panics and never returns an error. Any stage failure yields a Result with
// Failed set and only Question and Error filled.
func (p *Pipeline) Process(ctx context.Context, question string) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", zap.Any("panic", r), zap.String("question", question))
			res = failed(question, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err := p.process(ctx, question)
	if err != nil {
		p.logger.Warn("pipeline failed", zap.String("question", question), zap.Error(err))
		return failed(question, err)
	}
	return out
}

func failed(question string, err error) models.Result {
	return models.Result{Question: question, Failed: true, Error: err.Error()}
}

func (p *Pipeline) process(ctx context.Context, question string) (models.Result, error) {
	shortTerm := p.memory.RecentContext(p.recentTurns)
	longTerm := p.memory.Summary()

	decision := p.router.Route(ctx, question)
	p.logger.Debug("routed",
		zap.String("question", question),
		zap.String("backend", string(decision.Selected)),
		zap.Bool("fallback", decision.UsedFallback))

	items, hit := p.retrieve(ctx, question, decision.Selected)

	fused := p.fusion.Fuse(map[models.Backend][]string{
		decision.Selected: models.Contents(items),
	}, question)
	compressed := p.compressor.Compress(fused, question, p.tokenBudget)
	if compressed == nil {
		compressed = []string{}
	}

	variant := p.variant
	if variant == "" {
		variant = prompt.VariantDefault
		if shortTerm != "" {
			variant = prompt.VariantWithMemory
		}
	}
	built, err := prompt.Build(question, shortTerm, compressed, longTerm, variant)
	if err != nil {
		return models.Result{}, err
	}

	return models.Result{
		Question:    question,
		Route:       decision.Selected,
		RouteScores: decision.Scores,
		Retrieved:   compressed,
		ShortTerm:   shortTerm,
		LongTerm:    longTerm,
		FinalPrompt: prompt.EnforceMaxLength(built, p.maxLength),
		CacheHit:    hit,
	}, nil
}

// retrieve serves cacheable backends from the cache first. Backend errors are logged and
// treated as an empty result.
func (p *Pipeline) retrieve(ctx context.Context, question string, backend models.Backend) ([]models.RetrievedItem, bool) {
	cacheable := p.cache != nil && p.cache.Cacheable(backend)
	if cacheable {
		if items, ok := p.cache.Get(question, backend); ok {
			p.logger.Debug("cache hit", zap.String("backend", string(backend)))
			return items, true
		}
	}

	r, ok := p.retrievers[backend]
	if !ok {
		p.logger.Warn("no retriever for backend", zap.String("backend", string(backend)))
		return nil, false
	}
	records, err := r.Retrieve(ctx, question)
	if err != nil {
		p.logger.Warn("retrieval failed", zap.String("backend", string(backend)), zap.Error(err))
		return nil, false
	}
	items := make([]models.RetrievedItem, len(records))
	for i, rec := range records {
		items[i] = models.ToItem(rec)
	}
	if cacheable {
		p.cache.Set(question, backend, items)
	}
	return items, false
}

// RecordTurn appends a finished exchange to conversation memory.
func (p *Pipeline) RecordTurn(user, assistant string) error {
	return p.memory.Record(user, assistant)
}

// ResetMemory clears short-term and long-term memory.
func (p *Pipeline) ResetMemory() error {
	return p.memory.Reset()
}
