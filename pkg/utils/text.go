// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged. Length is counted in runes.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Words splits s into lower-cased runs of letters, digits and underscores.
// A run of CJK characters is a single word.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !isWordRune(r) })
}

// WordSet returns the distinct words of s.
func WordSet(s string) map[string]struct{} {
	words := Words(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsHan reports whether r is a CJK unified ideograph.
func IsHan(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// HanRuns returns the maximal runs of CJK ideographs in s.
func HanRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !IsHan(r) })
}

// ASCIIWords returns the runs of ASCII letters in s.
func ASCIIWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
}

// CollapseSpace lower-cases s, trims it and collapses whitespace runs to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Dedupe returns items with duplicates removed, keeping first occurrences.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
