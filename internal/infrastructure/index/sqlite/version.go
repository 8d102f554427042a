package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

// chunkEntry is one indexed chunk loaded into memory. The SQLite file is read
// once at open; serving never touches disk.
type chunkEntry struct {
	docID      string
	filename   string
	category   string
	page       int
	chunkIndex int
	text       string

	tokenCount int
	tf         map[string]int
	vector     []float32
}

// Version serves lexical and semantic sub-searches over one immutable index
// build. Both sub-searches answer from the same in-memory snapshot, so a
// concurrent swap can never mix results across versions. The version stays
// alive until its last holder releases it.
type Version struct {
	info     domain.IndexVersion
	embedder ports.Embedder

	chunks []chunkEntry
	df     map[string]int

	mu      sync.Mutex
	refs    int
	retired bool
}

func openVersion(dir string, embedders EmbedderFactory) (*Version, error) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(dir, indexFileName)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer db.Close()

	info, err := readMeta(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT doc_id, filename, category, page, chunk_index, text, embedding FROM chunks ORDER BY doc_id, page, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	v := &Version{info: info, df: make(map[string]int), refs: 1}
	for rows.Next() {
		var entry chunkEntry
		var blob []byte
		if err := rows.Scan(&entry.docID, &entry.filename, &entry.category, &entry.page, &entry.chunkIndex, &entry.text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		entry.vector = normalizeVector(decodeVector(blob))
		entry.tf = make(map[string]int)
		for _, token := range tokenize(entry.text) {
			entry.tf[token]++
			entry.tokenCount++
		}
		for token := range entry.tf {
			v.df[token]++
		}
		v.chunks = append(v.chunks, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	if embedders != nil {
		embedder, err := embedders(dir)
		if err != nil {
			return nil, fmt.Errorf("open version embedder: %w", err)
		}
		v.embedder = embedder
	}
	return v, nil
}

func readMeta(db *sql.DB) (domain.IndexVersion, error) {
	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return domain.IndexVersion{}, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	var info domain.IndexVersion
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.IndexVersion{}, fmt.Errorf("scan meta: %w", err)
		}
		switch key {
		case "version_id":
			info.VersionID = value
		case "built_at":
			if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
				info.BuiltAt = t
			}
		case "doc_count":
			fmt.Sscanf(value, "%d", &info.DocCount)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.IndexVersion{}, fmt.Errorf("iterate meta: %w", err)
	}
	if info.VersionID == "" {
		return domain.IndexVersion{}, fmt.Errorf("index file has no version_id")
	}
	return info, nil
}

func (v *Version) Info() domain.IndexVersion { return v.info }

// SearchLexical scores chunks with TF-IDF over the query tokens.
func (v *Version) SearchLexical(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	idf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		if _, seen := idf[token]; seen {
			continue
		}
		idf[token] = math.Log(1 + float64(len(v.chunks))/float64(1+v.df[token]))
	}

	type scored struct {
		idx   int
		score float64
	}
	var matches []scored
	for i := range v.chunks {
		entry := &v.chunks[i]
		if entry.tokenCount == 0 {
			continue
		}
		var score float64
		for token, weight := range idf {
			if count := entry.tf[token]; count > 0 {
				score += float64(count) / float64(entry.tokenCount) * weight
			}
		}
		if score > 0 {
			matches = append(matches, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		ca, cb := &v.chunks[matches[a].idx], &v.chunks[matches[b].idx]
		if ca.docID != cb.docID {
			return ca.docID < cb.docID
		}
		if ca.page != cb.page {
			return ca.page < cb.page
		}
		return ca.chunkIndex < cb.chunkIndex
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	hits := make([]domain.SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, v.hitFor(&v.chunks[m.idx], m.score))
	}
	return hits, nil
}

// SearchSemantic embeds the query with the version's own embedder and ranks
// chunks by cosine similarity.
func (v *Version) SearchSemantic(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if v.embedder == nil {
		return nil, fmt.Errorf("version %s has no embedder", v.info.VersionID)
	}
	if limit <= 0 {
		return nil, nil
	}
	raw, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := normalizeVector(raw)
	if len(queryVec) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var matches []scored
	for i := range v.chunks {
		score := dotProduct(queryVec, v.chunks[i].vector)
		if score > 0 {
			matches = append(matches, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		ca, cb := &v.chunks[matches[a].idx], &v.chunks[matches[b].idx]
		if ca.docID != cb.docID {
			return ca.docID < cb.docID
		}
		if ca.page != cb.page {
			return ca.page < cb.page
		}
		return ca.chunkIndex < cb.chunkIndex
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	hits := make([]domain.SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, v.hitFor(&v.chunks[m.idx], m.score))
	}
	return hits, nil
}

func (v *Version) hitFor(entry *chunkEntry, score float64) domain.SearchHit {
	hit := domain.SearchHit{
		DocumentID: entry.docID,
		Filename:   entry.filename,
		Page:       entry.page,
		Score:      score,
		Snippet:    entry.text,
	}
	if entry.category != "" {
		hit.Metadata = map[string]string{"category": entry.category}
	}
	return hit
}

func (v *Version) acquire() {
	v.mu.Lock()
	v.refs++
	v.mu.Unlock()
}

// Release drops one reference. The snapshot is freed once the version is
// retired and the last holder is gone.
func (v *Version) Release() {
	v.mu.Lock()
	v.refs--
	drop := v.refs == 0 && v.retired
	v.mu.Unlock()
	if drop {
		v.free()
	}
}

// retire drops the catalog's own reference.
func (v *Version) retire() {
	v.mu.Lock()
	if v.retired {
		v.mu.Unlock()
		return
	}
	v.retired = true
	v.refs--
	drop := v.refs == 0
	v.mu.Unlock()
	if drop {
		v.free()
	}
}

func (v *Version) free() {
	v.chunks = nil
	v.df = nil
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// keeping Hangul and other non-Latin scripts intact.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
