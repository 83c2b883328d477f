// Package cli provides output helpers for the kontext command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/kontext/internal/cache"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Status summarises the stores behind the pipeline.
type Status struct {
	Documents     int64       `json:"documents"`
	Chunks        int64       `json:"chunks"`
	VectorSize    int         `json:"vector_index_size"`
	Nodes         int         `json:"graph_nodes"`
	Relationships int         `json:"graph_relationships"`
	Cache         cache.Stats `json:"cache"`
	MemoryTurns   int         `json:"memory_turns"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteResult writes a pipeline result to w in the given format.
func WriteResult(w io.Writer, res models.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Failed {
		fmt.Fprintf(w, "failed: %s\n", res.Error)
		return nil
	}
	cached := ""
	if res.CacheHit {
		cached = " (cached)"
	}
	fmt.Fprintf(w, "route: %s%s\n", res.Route, cached)
	backends := make([]string, 0, len(res.RouteScores))
	for b := range res.RouteScores {
		backends = append(backends, string(b))
	}
	sort.Strings(backends)
	for _, b := range backends {
		fmt.Fprintf(w, "  %-10s %.4f\n", b, res.RouteScores[models.Backend(b)])
	}
	fmt.Fprintf(w, "\nretrieved (%d):\n", len(res.Retrieved))
	for _, item := range res.Retrieved {
		fmt.Fprintf(w, "  - %s\n", item)
	}
	if res.LongTerm != "" {
		fmt.Fprintf(w, "\nlong-term: %s\n", Truncate(res.LongTerm, 200))
	}
	fmt.Fprintf(w, "\n─────────────────────────────────────────────────────────\n%s\n", res.FinalPrompt)
	return nil
}

// WriteStatus writes store counts to w in the given format.
func WriteStatus(w io.Writer, st Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # indexed documents\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # text chunks\n", st.Chunks)
	fmt.Fprintf(w, "vector_index_size:  %d   # vectors in semantic index\n", st.VectorSize)
	fmt.Fprintf(w, "graph_nodes:        %d\n", st.Nodes)
	fmt.Fprintf(w, "graph_relationships: %d\n", st.Relationships)
	fmt.Fprintf(w, "memory_turns:       %d\n", st.MemoryTurns)
	fmt.Fprintln(w)
	return WriteCacheStats(w, st.Cache, OutputText)
}

// WriteCacheStats writes cache counters to w in the given format.
func WriteCacheStats(w io.Writer, st cache.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "cache_entries:      %d\n", st.Entries)
	fmt.Fprintf(w, "cache_bytes:        %d\n", st.Bytes)
	fmt.Fprintf(w, "cache_hits:         %d\n", st.Hits)
	fmt.Fprintf(w, "cache_misses:       %d\n", st.Misses)
	return nil
}

// Truncate shortens s to maxLen characters and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}
