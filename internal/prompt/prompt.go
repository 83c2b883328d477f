// Package prompt renders the final model prompt and enforces its length limit.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kontext/internal/memory"
)

// Variant names a prompt template.
type Variant string

const (
	VariantDefault    Variant = "default"
	VariantWithMemory Variant = "with_memory"
	VariantTechnical  Variant = "technical"
)

const (
	// SystemMarker starts every system-instruction line.
	SystemMarker = "系统指令:"
	// QuestionMarker starts the user-question block, which runs to the end of the prompt.
	QuestionMarker = "用户问题:"
	// TruncationMarker is appended to cut context.
	TruncationMarker = "...(内容已截断)"

	// DefaultMaxLength is the prompt limit in characters.
	DefaultMaxLength = 4000

	safetyMargin = 100
)

// ErrUnsupportedVariant is returned by Build for an unknown template name.
var ErrUnsupportedVariant = errors.New("unsupported prompt variant")

var templates = map[Variant]string{
	VariantDefault: SystemMarker + " 你是智能中文助手。\n\n%s\n\n" + QuestionMarker + "\n%s",
	VariantWithMemory: SystemMarker + " 你是智能中文助手，请结合对话历史回答问题。\n\n%s\n\n" +
		QuestionMarker + "\n%s",
	VariantTechnical: SystemMarker + " 你是技术专家助手，请提供准确的技术信息。\n\n%s\n\n" +
		QuestionMarker + "\n%s\n\n请提供详细的技术解答。",
}

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if _, ok := templates[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
	}
	return v, nil
}

// Sections renders the context block: short-term memory, retrieved lines, and the long-term
// summary, each only when present, separated by blank lines.
func Sections(shortTerm string, retrieved []string, longTerm string) string {
	var parts []string
	if shortTerm != "" {
		parts = append(parts, "短期对话记忆:\n"+shortTerm)
	}
	if len(retrieved) > 0 {
		parts = append(parts, "相关知识检索结果:\n"+strings.Join(retrieved, "\n"))
	}
	if longTerm != "" && longTerm != memory.EmptySummary {
		parts = append(parts, "长期摘要:\n"+longTerm)
	}
	return strings.Join(parts, "\n\n")
}

// Build renders the template for variant.
func Build(question, shortTerm string, retrieved []string, longTerm string, variant Variant) (string, error) {
	tmpl, ok := templates[variant]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, variant)
	}
	return fmt.Sprintf(tmpl, Sections(shortTerm, retrieved, longTerm), question), nil
}

// EnforceMaxLength shortens prompt to maxLen characters by cutting context only. System lines
// and the question block are kept verbatim and the question is moved last. When even those do
// not leave room for the margin, all context is dropped.
func EnforceMaxLength(prompt string, maxLen int) string {
	if utf8.RuneCountInString(prompt) <= maxLen {
		return prompt
	}

	var system, question, context []string
	inQuestion := false
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, QuestionMarker) {
			inQuestion = true
		}
		switch {
		case inQuestion:
			question = append(question, line)
		case strings.HasPrefix(line, SystemMarker):
			system = append(system, line)
		default:
			context = append(context, line)
		}
	}

	essential := strings.Join(append(append([]string(nil), system...), question...), "\n")
	remaining := maxLen - utf8.RuneCountInString(essential) - safetyMargin
	if remaining <= 0 {
		return essential
	}

	ctx := []rune(strings.Join(context, "\n"))
	text := string(ctx)
	if len(ctx) > remaining {
		text = string(ctx[:remaining]) + TruncationMarker
	}
	lines := append(append(append([]string(nil), system...), text), question...)
	return strings.Join(lines, "\n")
}
