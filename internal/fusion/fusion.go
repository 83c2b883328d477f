// Package fusion merges candidate context lines from several backends into one ranked list,
// and combines keyword and vector scores for hybrid document retrieval.
package fusion

import (
	"regexp"
	"sort"

	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/pkg/utils"
)

const (
	coverageWeight = 0.4
	densityWeight  = 0.3
	sourceWeight   = 0.3
	densityScale   = 10.0
)

var densityPattern = regexp.MustCompile(`\d+|[A-Z][a-z]+`)

// Config holds the selection limits. Zero values take the defaults (3, 2, 8).
type Config struct {
	// TopUnconditional items are accepted regardless of source.
	TopUnconditional int
	// DiversityWindow is how many previously accepted sources a later item must differ from.
	DiversityWindow int
	MaxItems        int
	// Weights overrides per-backend source weights.
	Weights map[models.Backend]float64
}

// Engine fuses per-backend result lists.
type Engine struct {
	cfg Config
}

// New returns an Engine with cfg, filling unset limits with defaults.
func New(cfg Config) *Engine {
	if cfg.TopUnconditional <= 0 {
		cfg.TopUnconditional = 3
	}
	if cfg.DiversityWindow <= 0 {
		cfg.DiversityWindow = 2
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 8
	}
	return &Engine{cfg: cfg}
}

// Candidate is one fused line with its score breakdown.
type Candidate struct {
	Content  string
	Source   models.Backend
	Coverage float64
	Density  int
	Score    float64
}

func (e *Engine) weight(b models.Backend) float64 {
	if w, ok := e.cfg.Weights[b]; ok {
		return w
	}
	return b.Weight()
}

// Fuse dedupes, scores, and selects lines. Sources are visited in the fixed backend order so
// that a duplicate keeps its first, highest-priority source.
func (e *Engine) Fuse(results map[models.Backend][]string, query string) []string {
	selected := e.Rank(results, query)
	out := make([]string, len(selected))
	for i, c := range selected {
		out[i] = c.Content
	}
	return out
}

// Rank is Fuse returning the selected candidates with scores.
func (e *Engine) Rank(results map[models.Backend][]string, query string) []Candidate {
	queryWords := utils.WordSet(query)
	seen := make(map[string]struct{})
	var candidates []Candidate
	for _, b := range models.Backends {
		for _, content := range results[b] {
			norm := utils.CollapseSpace(content)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			candidates = append(candidates, e.score(content, b, queryWords))
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return e.diversify(candidates)
}

func (e *Engine) score(content string, source models.Backend, queryWords map[string]struct{}) Candidate {
	c := Candidate{Content: content, Source: source}
	if len(queryWords) > 0 {
		hit := 0
		for w := range utils.WordSet(content) {
			if _, ok := queryWords[w]; ok {
				hit++
			}
		}
		c.Coverage = float64(hit) / float64(len(queryWords))
	}
	c.Density = len(densityPattern.FindAllString(content, -1))
	c.Score = coverageWeight*c.Coverage +
		densityWeight*(float64(c.Density)/densityScale) +
		sourceWeight*e.weight(source)
	return c
}

func (e *Engine) diversify(ranked []Candidate) []Candidate {
	var out []Candidate
	var sources []models.Backend
	for _, c := range ranked {
		if len(out) >= e.cfg.TopUnconditional && recentlyUsed(sources, c.Source, e.cfg.DiversityWindow) {
			continue
		}
		out = append(out, c)
		sources = append(sources, c.Source)
	}
	if len(out) > e.cfg.MaxItems {
		out = out[:e.cfg.MaxItems]
	}
	return out
}

func recentlyUsed(sources []models.Backend, b models.Backend, window int) bool {
	start := len(sources) - window
	if start < 0 {
		start = 0
	}
	for _, s := range sources[start:] {
		if s == b {
			return true
		}
	}
	return false
}
