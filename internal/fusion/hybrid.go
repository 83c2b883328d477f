package fusion

import "sort"

// Scored is an id with a raw backend score.
type Scored struct {
	ID    string
	Score float64
}

// HybridResult holds a chunk ID and fused keyword/semantic scores.
type HybridResult struct {
	ID            string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeByMax scales scores into [0,1] by dividing by the maximum.
func NormalizeByMax(results []Scored) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// ToMap returns the scores as-is, keyed by ID. Cosine scores are already comparable.
func ToMap(results []Scored) map[string]float64 {
	m := make(map[string]float64, len(results))
	for _, r := range results {
		m[r.ID] = r.Score
	}
	return m
}

// Hybrid merges keyword and semantic score maps with weights, best first. Equal scores are
// ordered by ID so output is deterministic.
func Hybrid(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []HybridResult {
	byID := make(map[string]*HybridResult, len(keywordScores)+len(semanticScores))
	for id, s := range keywordScores {
		byID[id] = &HybridResult{ID: id, KeywordScore: s}
	}
	for id, s := range semanticScores {
		if r, ok := byID[id]; ok {
			r.SemanticScore = s
		} else {
			byID[id] = &HybridResult{ID: id, SemanticScore: s}
		}
	}
	out := make([]HybridResult, 0, len(byID))
	for _, r := range byID {
		r.Score = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
