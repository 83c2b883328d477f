// Package router picks the retrieval backend for a query.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/pkg/utils"
)

// DefaultThreshold is the minimum gap between the best and second-best backend score for the
// embedding signal to be trusted without the classifier.
const DefaultThreshold = 0.1

// Embedder is the part of embedding.Embedder the router needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Classifier is the optional fallback signal. Its answer is matched against backend labels.
type Classifier interface {
	Classify(ctx context.Context, query string) (string, error)
}

// Router scores a query against per-backend example phrases embedded once at construction.
type Router struct {
	embedder   Embedder
	classifier Classifier
	threshold  float64
	examples   map[models.Backend][][]float32
	logger     *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClassifier sets the fallback classifier. Without one, ambiguous queries go to the
// semantic backend.
func WithClassifier(c Classifier) Option {
	return func(r *Router) {
		r.classifier = c
	}
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(r *Router) {
		r.threshold = t
	}
}

// New embeds the example phrases and returns a ready router. Every backend needs at least
// one example.
func New(ctx context.Context, embedder Embedder, examples map[models.Backend][]string, opts ...Option) (*Router, error) {
	r := &Router{
		embedder:  embedder,
		threshold: DefaultThreshold,
		examples:  make(map[models.Backend][][]float32, len(models.Backends)),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, b := range models.Backends {
		phrases := examples[b]
		if len(phrases) == 0 {
			return nil, fmt.Errorf("router: no examples for backend %s", b)
		}
		vecs, err := embedder.EmbedBatch(ctx, phrases)
		if err != nil {
			return nil, fmt.Errorf("router: embed %s examples: %w", b, err)
		}
		r.examples[b] = vecs
	}
	return r, nil
}

// ExamplesFromLabels converts a label- or name-keyed example table into backend keys.
func ExamplesFromLabels(in map[string][]string) (map[models.Backend][]string, error) {
	out := make(map[models.Backend][]string, len(in))
	for k, v := range in {
		b, err := models.ParseBackend(k)
		if err != nil {
			return nil, err
		}
		out[b] = append(out[b], v...)
	}
	return out, nil
}

// Route never fails. An unusable embedding signal, a classifier error, or an unparseable
// classifier answer all resolve to the semantic backend.
func (r *Router) Route(ctx context.Context, query string) models.RouteDecision {
	scores := make(map[models.Backend]float64, len(models.Backends))
	for _, b := range models.Backends {
		scores[b] = 0
	}

	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, using fallback", zap.Error(err))
		return r.fallback(ctx, query, scores)
	}
	for b, vecs := range r.examples {
		best := 0.0
		for i, v := range vecs {
			s := utils.Cosine(qv, v)
			if i == 0 || s > best {
				best = s
			}
		}
		scores[b] = best
	}

	top, second := rank(scores)
	if scores[top]-scores[second] < r.threshold {
		return r.fallback(ctx, query, scores)
	}
	r.logger.Debug("embedding route",
		zap.String("query", query),
		zap.String("backend", string(top)),
		zap.Float64("gap", scores[top]-scores[second]))
	return models.RouteDecision{Selected: top, Scores: scores}
}

// rank returns the best and second-best backends. Ties keep the fixed backend order.
func rank(scores map[models.Backend]float64) (top, second models.Backend) {
	order := models.Backends
	top, second = order[0], order[1]
	if scores[second] > scores[top] {
		top, second = second, top
	}
	for _, b := range order[2:] {
		switch {
		case scores[b] > scores[top]:
			top, second = b, top
		case scores[b] > scores[second]:
			second = b
		}
	}
	return top, second
}

func (r *Router) fallback(ctx context.Context, query string, scores map[models.Backend]float64) models.RouteDecision {
	d := models.RouteDecision{Selected: models.BackendSemantic, Scores: scores, UsedFallback: true}
	if r.classifier == nil {
		return d
	}
	answer, err := r.classifier.Classify(ctx, query)
	if err != nil {
		r.logger.Warn("fallback classifier failed, defaulting to semantic", zap.Error(err))
		return d
	}
	d.Selected = ParseLabel(answer)
	r.logger.Debug("classifier route", zap.String("query", query), zap.String("backend", string(d.Selected)))
	return d
}

// ParseLabel finds the first backend label contained in answer, checking vdb, sql, graph in
// that order. Anything else is the semantic backend.
func ParseLabel(answer string) models.Backend {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, b := range models.Backends {
		if strings.Contains(answer, b.Label()) {
			return b
		}
	}
	return models.BackendSemantic
}
