package memory

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kontext/internal/models"
)

const (
	topicPrefix   = "最近讨论的主要话题: "
	maxTopics     = 5
	minTopicRunes = 3
)

// TopicSummary is the default summarizer. It lists the most frequent whitespace-separated
// words longer than two characters from the user side of the window. Ties keep first-seen order.
func TopicSummary(window []models.ConversationTurn) string {
	counts := make(map[string]int)
	var order []string
	for _, t := range window {
		for _, w := range strings.Fields(t.User) {
			if utf8.RuneCountInString(w) < minTopicRunes {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}
	if len(order) == 0 {
		return ""
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxTopics {
		order = order[:maxTopics]
	}
	return topicPrefix + strings.Join(order, ", ")
}
