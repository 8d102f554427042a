package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	if chunks := NewSplitter(100, 20).Split("   "); chunks != nil {
		t.Fatalf("expected nil for blank text, got %v", chunks)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := NewSplitter(100, 20).Split("short page text")
	if len(chunks) != 1 || chunks[0] != "short page text" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestSplitRespectsSizeBound(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := NewSplitter(80, 16).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if got := len([]rune(chunk)); got > 80 {
			t.Fatalf("chunk %d exceeds size bound: %d runes", i, got)
		}
	}
}

func TestSplitDoesNotCutWords(t *testing.T) {
	words := make([]string, 120)
	for i := range words {
		words[i] = "capacity"
	}
	text := strings.Join(words, " ")

	for _, chunk := range NewSplitter(100, 0).Split(text) {
		for _, field := range strings.Fields(chunk) {
			if field != "capacity" {
				t.Fatalf("word was cut mid-token: %q", field)
			}
		}
	}
}

func TestSplitHardCutWithoutWhitespace(t *testing.T) {
	text := strings.Repeat("가", 250)
	chunks := NewSplitter(100, 0).Split(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 hard-cut chunks, got %d", len(chunks))
	}
	total := 0
	for _, chunk := range chunks {
		total += len([]rune(chunk))
	}
	if total != 250 {
		t.Fatalf("hard cut lost text: %d runes total", total)
	}
}

func TestNewSplitterNormalizesBadConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.ChunkSize != 900 || s.Overlap != 0 {
		t.Fatalf("unexpected normalized config: %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("oversized overlap must clamp to a quarter, got %d", s.Overlap)
	}
}
