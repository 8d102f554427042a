// Package chunking splits page text into overlapping rune windows for
// indexing.
package chunking

import (
	"strings"
	"unicode"
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split cuts text into chunks of at most ChunkSize runes, consecutive
// chunks sharing Overlap runes. Cut points back off to the nearest
// whitespace so words are not split mid-token; a window with no whitespace
// is cut hard.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToWhitespace(runes, start, end)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
		// Continue from the actual cut, keeping the overlap, and always
		// move forward even when snapping pulled the cut far back.
		next := end - s.Overlap
		if next <= start {
			next = start + step
		}
		start = next
	}
	return out
}

// snapToWhitespace walks the cut point back to the last whitespace in the
// window, keeping at least half the window so pathological text still makes
// progress.
func snapToWhitespace(runes []rune, start, end int) int {
	limit := start + (end-start)/2
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
