// Package tfidf is the offline fallback embedder: a TF-IDF vectorizer
// fitted on the corpus during each rebuild. Its fitted state is written
// into the index version, so query-time vectors always come from the same
// vocabulary the chunks were embedded with.
package tfidf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Embedder struct {
	vocabulary   map[string]int
	idf          []float64
	dimension    int
	prepared     bool
	tokenPattern *regexp.Regexp
}

func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		// Letters of any script plus digits, so model numbers like "80TB"
		// and Hangul terms survive tokenization.
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

// Prepare fits vocabulary and smoothed IDF weights on the chunk corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for tfidf prepare")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, token := range e.tokenize(text) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			df[token]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus")
	}

	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		e.vocabulary[term] = i
		e.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.dimension = len(terms)
	e.prepared = true
	return nil
}

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectorize(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	return e.vectorize(text), nil
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) vectorize(text string) []float32 {
	vec := make([]float32, e.dimension)
	tf := make(map[int]int)
	total := 0
	for _, token := range e.tokenize(text) {
		if idx, ok := e.vocabulary[token]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	var norm float64
	for idx, count := range tf {
		w := float64(count) / float64(total) * e.idf[idx]
		vec[idx] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for idx := range tf {
			vec[idx] *= inv
		}
	}
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	return e.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// snapshot is the serialized fitted state. Terms are stored in vocabulary
// order, so index i in terms and idf describe the same dimension.
type snapshot struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
}

// Snapshot serializes the fitted vocabulary for storage inside the index
// version.
func (e *Embedder) Snapshot() ([]byte, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	terms := make([]string, e.dimension)
	for term, idx := range e.vocabulary {
		terms[idx] = term
	}
	return json.Marshal(snapshot{Terms: terms, IDF: e.idf})
}

// Restore rebuilds a fitted embedder from snapshot bytes.
func Restore(data []byte) (*Embedder, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode tfidf snapshot: %w", err)
	}
	if len(snap.Terms) != len(snap.IDF) {
		return nil, fmt.Errorf("tfidf snapshot has %d terms but %d idf values", len(snap.Terms), len(snap.IDF))
	}
	e := NewEmbedder()
	e.vocabulary = make(map[string]int, len(snap.Terms))
	for i, term := range snap.Terms {
		e.vocabulary[term] = i
	}
	e.idf = snap.IDF
	e.dimension = len(snap.Terms)
	e.prepared = true
	return e, nil
}

// Load reads the snapshot artifact from a version directory.
func Load(versionDir, artifactName string) (*Embedder, error) {
	data, err := os.ReadFile(filepath.Join(versionDir, artifactName))
	if err != nil {
		return nil, fmt.Errorf("read tfidf snapshot: %w", err)
	}
	return Restore(data)
}
