package models

import "time"

// RetrievedItem is one rendered backend result owned by a single request.
type RetrievedItem struct {
	Content        string            `json:"content"`
	Source         Backend           `json:"source"`
	RelevanceScore float64           `json:"relevance_score"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Contents returns the rendered content strings of items, in order.
func Contents(items []RetrievedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}

// RouteDecision is the router's choice for one query.
type RouteDecision struct {
	Selected Backend             `json:"selected_backend"`
	Scores   map[Backend]float64 `json:"per_backend_score"`
	// UsedFallback is true when the embedding signal was ambiguous and the classifier was consulted.
	UsedFallback bool `json:"used_fallback"`
}

// ConversationTurn is one user/assistant exchange. Turns are append-only.
type ConversationTurn struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

// Result is the response of a single pipeline run. When Failed is true only Question and
// Error are meaningful.
type Result struct {
	Question    string              `json:"question"`
	Route       Backend             `json:"route"`
	RouteScores map[Backend]float64 `json:"route_scores"`
	Retrieved   []string            `json:"retrieved"`
	ShortTerm   string              `json:"short_term"`
	LongTerm    string              `json:"long_term"`
	FinalPrompt string              `json:"final_prompt"`
	CacheHit    bool                `json:"cache_hit"`
	Failed      bool                `json:"failed,omitempty"`
	Error       string              `json:"error,omitempty"`
}
