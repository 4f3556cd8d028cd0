package chunker

import (
	"fmt"
	"regexp"
)

// Chunker splits raw text into overlapping windows aligned to sentence
// boundaries where possible.
type Chunker struct {
	chunkSize int
	overlap   int
	boundary  *regexp.Regexp
}

// New creates a Chunker. chunkSize must exceed overlap, which must be
// non-negative; anything else cannot guarantee forward progress and is
// rejected as a configuration error.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		boundary:  regexp.MustCompile(`[.!?]\s+`),
	}, nil
}

// Chunk walks text left to right in windows of chunkSize bytes. Every window
// except the last is trimmed back to the last sentence boundary inside it, if
// one exists; consecutive windows overlap by the configured amount. Empty
// input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	if len(text) == 0 {
		return nil
	}
	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		window := text[start:end]
		// A boundary at or before the overlap offset would move the next
		// window backwards, so only trim when the cut keeps us advancing.
		if cut := c.lastSentenceEnd(window); cut > c.overlap {
			end = start + cut
		}
		chunks = append(chunks, text[start:end])
		start = end - c.overlap
	}
	return chunks
}

// lastSentenceEnd returns the offset just past the final sentence-terminal
// punctuation and its trailing whitespace, or -1 when the window has none.
func (c *Chunker) lastSentenceEnd(window string) int {
	locs := c.boundary.FindAllStringIndex(window, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][1]
}
