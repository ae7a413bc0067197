// Package splitter cuts long text into overlapping chunks for embedding.
// Cuts prefer paragraph breaks, then sentence ends, then word boundaries,
// falling back to a hard cut when no separator is in range.
package splitter

import "strings"

// Defaults used when a Splitter is built with non-positive parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter produces chunks of at most Size runes with Overlap runes
// shared between consecutive chunks.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter. Non-positive size or overlap fall back to the
// defaults; overlap is clamped below size.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Splitter{size: size, overlap: overlap}
}

// Size returns the configured chunk size in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into chunks. Every chunk is an exact substring of the
// input and at most Size runes long; consecutive chunks share Overlap
// runes unless the cut landed closer to the chunk start.
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

		cut := findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findCut scans backwards from end looking for a natural boundary. The
// first quarter of the window is excluded so chunks never collapse to
// near-empty fragments.
func findCut(runes []rune, start, end int) int {
	floor := start + (end-start)/4

	if i := lastIndexWithin(runes, floor, end, "\n\n"); i >= 0 {
		return i + 2
	}
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := lastIndexWithin(runes, floor, end, sep); i >= 0 {
			return i + len([]rune(sep))
		}
	}
	if i := lastIndexWithin(runes, floor, end, " "); i >= 0 {
		return i + 1
	}
	return end
}

// lastIndexWithin finds the last occurrence of sep in runes[floor:end),
// returned as an absolute rune index, or -1.
func lastIndexWithin(runes []rune, floor, end int, sep string) int {
	window := string(runes[floor:end])
	i := strings.LastIndex(window, sep)
	if i < 0 {
		return -1
	}
	return floor + len([]rune(window[:i]))
}
