// Package compress trims retrieved context to a token budget.
package compress

import (
	"sort"
	"unicode/utf8"

	"github.com/hyperjump/kontext/pkg/utils"
)

const (
	// DefaultBudget is the pipeline's context budget in tokens.
	DefaultBudget = 1500

	// SummaryTag marks an item that was cut to fit.
	SummaryTag = "[摘要] "
	ellipsis   = "..."

	overlapWeight     = 10.0
	lengthPenaltyUnit = 200.0
	maxLengthPenalty  = 2.0
	summarizeBelow    = 0.8
)

// Compressor selects and truncates context items so their estimated size fits a budget.
type Compressor struct {
	est Estimator
}

// New returns a Compressor using est, or CharEstimator when est is nil.
func New(est Estimator) *Compressor {
	if est == nil {
		est = CharEstimator{}
	}
	return &Compressor{est: est}
}

// EstimateTokens sums the per-item estimates.
func (c *Compressor) EstimateTokens(items []string) int {
	total := 0
	for _, it := range items {
		total += c.est.Estimate(it)
	}
	return total
}

type scored struct {
	content string
	score   float64
	tokens  int
}

// Compress returns items unchanged when they already fit. Otherwise items are ranked by query
// overlap minus a length penalty and accepted greedily. The first item that does not fit is
// cut down and tagged if less than 80% of the budget is used, and selection stops there.
func (c *Compressor) Compress(items []string, query string, budget int) []string {
	if len(items) == 0 {
		return nil
	}
	if c.EstimateTokens(items) <= budget {
		return items
	}

	ranked := c.rank(items, query)
	var out []string
	used := 0
	for _, it := range ranked {
		if used+it.tokens <= budget {
			out = append(out, it.content)
			used += it.tokens
			continue
		}
		if float64(used) < summarizeBelow*float64(budget) {
			if cut, ok := c.truncate(it.content, budget-used); ok {
				out = append(out, cut)
			}
		}
		break
	}
	return out
}

func (c *Compressor) rank(items []string, query string) []scored {
	queryWords := utils.WordSet(query)
	out := make([]scored, len(items))
	for i, it := range items {
		overlap := 0
		for w := range utils.WordSet(it) {
			if _, ok := queryWords[w]; ok {
				overlap++
			}
		}
		penalty := float64(utf8.RuneCountInString(it)) / lengthPenaltyUnit
		if penalty > maxLengthPenalty {
			penalty = maxLengthPenalty
		}
		out[i] = scored{
			content: it,
			score:   overlapWeight*float64(overlap) - penalty,
			tokens:  c.est.Estimate(it),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// truncate returns the longest tagged prefix of content whose estimate fits remaining.
func (c *Compressor) truncate(content string, remaining int) (string, bool) {
	if remaining <= 0 {
		return "", false
	}
	runes := []rune(content)
	render := func(n int) string {
		if n >= len(runes) {
			return SummaryTag + content
		}
		return SummaryTag + string(runes[:n]) + ellipsis
	}
	if c.est.Estimate(render(len(runes))) <= remaining {
		return render(len(runes)), true
	}
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.est.Estimate(render(mid)) <= remaining {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return "", false
	}
	return render(lo), true
}
