// Package chunker splits extracted document text into overlapping
// fixed-size windows ahead of embedding. Splitting is a pure function of
// its input: the same text always produces the same chunk sequence.
//
// Windows are measured in runes rather than bytes so multi-byte scripts
// never get cut mid-character.
package chunker

import (
	"fmt"
	"strings"
)

// Default window parameters, matching the embedding model's sweet spot for
// retrieval-sized passages.
const (
	// DefaultChunkSize is the maximum number of runes per chunk.
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of runes shared between consecutive
	// chunks so that sentences spanning a boundary stay retrievable.
	DefaultOverlap = 150
)

// Chunker splits text into overlapping windows of a fixed size.
// The zero value is not usable; construct with New.
type Chunker struct {
	// size is the maximum number of runes per chunk.
	size int
	// overlap is the number of runes shared between consecutive chunks.
	overlap int
}

// New constructs a Chunker with the given window size and overlap.
// Passing zero for size selects the package defaults for both parameters;
// an explicit size with zero overlap yields non-overlapping windows.
// Returns an error when size < 0, overlap < 0, or overlap >= size —
// a window that advances by zero or negative runes would never terminate.
func New(size, overlap int) (*Chunker, error) {
	if size == 0 {
		size = DefaultChunkSize
		if overlap == 0 {
			overlap = DefaultOverlap
		}
	}
	if size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum chunk size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split divides text into overlapping windows of up to Size runes, each
// window starting Size-Overlap runes after the previous one. The final
// window may be shorter. Empty or whitespace-only text yields an empty
// slice, not an error.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	runes := []rune(text)
	step := c.size - c.overlap

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
