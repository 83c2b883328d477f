package storage

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kontext/pkg/utils"
)

// keywordExpansions adds bilingual synonyms when a trigger term appears in the question.
var keywordExpansions = []struct {
	trigger string
	terms   []string
}{
	{"限制", []string{"限制", "limit"}},
	{"接口", []string{"接口", "interface"}},
	{"配置", []string{"配置", "config"}},
	{"参数", []string{"参数", "param"}},
}

// ExtractKeywords pulls search terms from a question: known bilingual expansions, ASCII words
// longer than two letters (lower-cased), and runs of two or more CJK characters. The result is
// deduplicated in first-seen order.
func ExtractKeywords(question string) []string {
	var kw []string
	if strings.Contains(strings.ToLower(question), "api") {
		kw = append(kw, "api", "API")
	}
	for _, e := range keywordExpansions {
		if strings.Contains(question, e.trigger) {
			kw = append(kw, e.terms...)
		}
	}
	for _, w := range utils.ASCIIWords(question) {
		if len(w) > 2 {
			kw = append(kw, strings.ToLower(w))
		}
	}
	for _, w := range utils.HanRuns(question) {
		if utf8.RuneCountInString(w) >= 2 {
			kw = append(kw, w)
		}
	}
	return utils.Dedupe(kw)
}

// likePattern wraps kw for a substring LIKE match, escaping LIKE wildcards.
func likePattern(kw string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(kw) + "%"
}
