package indexer

import (
	"strings"
	"unicode"
)

// Preprocess trims text and collapses runs of whitespace to one space, keeping a single
// newline where the run contained one.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	inSpace, sawNewline := false, false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			sawNewline = sawNewline || r == '\n'
			continue
		}
		if inSpace {
			if sawNewline {
				b.WriteRune('\n')
			} else {
				b.WriteRune(' ')
			}
			inSpace, sawNewline = false, false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeTitle replaces underscores and dashes with spaces so file names like
// "api_rate-limits.md" are searchable word by word.
func normalizeTitle(title string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(title)
}
