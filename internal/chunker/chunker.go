// Package chunker splits normalized text into overlapping segments sized for
// the embedding model's context budget.
//
// Sizes are counted in runes, not bytes, so multi-byte text chunks the same
// way as ASCII. Splitting is deterministic: the same text and configuration
// always produce the same chunk sequence, which is what makes re-ingestion
// produce identical chunk IDs and dedup via upsert work.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates a chunk size/overlap combination that cannot
// produce forward progress.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config holds chunking parameters.
type Config struct {
	// ChunkSize is the maximum chunk length in runes. Default: 600.
	ChunkSize int

	// Overlap is the number of runes consecutive chunks share. Must be
	// smaller than ChunkSize. Default: 100.
	Overlap int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 600
	}
	if c.Overlap == 0 {
		c.Overlap = 100
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Splitter splits text into overlapping chunks.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter, rejecting configurations where the overlap
// is not smaller than the chunk size.
func NewSplitter(cfg Config) (*Splitter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{size: cfg.ChunkSize, overlap: cfg.Overlap}, nil
}

// Split splits text into chunks of at most ChunkSize runes where each chunk
// starts exactly Overlap runes before the previous chunk's end.
//
// When the chunk boundary would sever mid-word, the cut point snaps back to
// the nearest paragraph, sentence, or word boundary found in the tail fifth
// of the window; with no boundary in reach the cut is hard. Because the next
// chunk always starts Overlap runes before the actual cut, consecutive chunks
// share exactly Overlap runes regardless of snapping.
//
// Empty input yields an empty sequence, not an error.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := s.naturalCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - s.overlap
	}
	return chunks
}

// naturalCut finds the cut point for a window ending at end. It scans
// backward for a paragraph break, then a sentence end, then a word break,
// giving up after a fifth of the window and falling back to the hard cut.
// The cut never retreats past start+overlap, which would stall the walk.
func (s *Splitter) naturalCut(runes []rune, start, end int) int {
	window := s.size / 5
	floor := end - window
	if min := start + s.overlap + 1; floor < min {
		floor = min
	}
	if floor >= end {
		return end
	}

	for _, boundary := range []func([]rune, int) bool{isParagraphBreak, isSentenceEnd, isWordBreak} {
		for cut := end; cut > floor; cut-- {
			if boundary(runes, cut) {
				return cut
			}
		}
	}
	return end
}

// isParagraphBreak reports whether a cut at i lands just after a newline.
func isParagraphBreak(runes []rune, i int) bool {
	return runes[i-1] == '\n'
}

// isSentenceEnd reports whether a cut at i lands just after sentence
// punctuation followed by spacing.
func isSentenceEnd(runes []rune, i int) bool {
	if i >= len(runes) || !isSpace(runes[i]) {
		return false
	}
	switch runes[i-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// isWordBreak reports whether a cut at i lands just after whitespace.
func isWordBreak(runes []rune, i int) bool {
	return isSpace(runes[i-1])
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
