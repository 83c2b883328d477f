// Package indexer splits documents into chunks and writes them to storage and both
// semantic-retrieval indices.
package indexer

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/pkg/utils"
)

// Chunker splits text into overlapping windows of units. A unit is one Latin word or one
// Chinese character, so mixed-language text chunks evenly.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in units).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into DocumentChunks with overlapping windows.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	units := splitUnits(text)
	if len(units) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []*models.DocumentChunk
	for i := 0; i < len(units); i += step {
		end := i + c.chunkSize
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, &models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Content:    strings.TrimSpace(strings.Join(units[i:end], "")),
			ChunkIndex: len(chunks),
		})
		if end >= len(units) {
			break
		}
	}
	return chunks
}

// splitUnits cuts text into units, each carrying its trailing whitespace so joining a
// window reproduces the original spacing.
func splitUnits(text string) []string {
	var units []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			units = append(units, text[start:end])
			start = -1
		}
	}
	inWord := false
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case utils.IsHan(r):
			flush(i)
			start = i
			inWord = false
		default:
			if !inWord {
				flush(i)
				start = i
				inWord = true
			}
		}
	}
	flush(len(text))
	return units
}
