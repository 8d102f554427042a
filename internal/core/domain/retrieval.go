package domain

// SearchHit is one fused retrieval result. Produced fresh per query, never
// persisted.
type SearchHit struct {
	DocumentID    string            `json:"document_id"`
	Filename      string            `json:"filename"`
	Page          int               `json:"page"`
	Score         float64           `json:"score"`
	LexicalScore  float64           `json:"lexical_score"`
	SemanticScore float64           `json:"semantic_score"`
	Snippet       string            `json:"snippet"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ScoreStats summarizes the head of a ranked hit list. All-zero stats over an
// empty list is a valid outcome, not an error.
type ScoreStats struct {
	Top1    float64 `json:"top1"`
	Top2    float64 `json:"top2"`
	Top3    float64 `json:"top3"`
	Delta12 float64 `json:"delta12"`
	Delta13 float64 `json:"delta13"`
}

// ComputeScoreStats derives ScoreStats from a list already sorted by
// non-increasing score.
func ComputeScoreStats(hits []SearchHit) ScoreStats {
	var stats ScoreStats
	if len(hits) > 0 {
		stats.Top1 = hits[0].Score
	}
	if len(hits) > 1 {
		stats.Top2 = hits[1].Score
	}
	if len(hits) > 2 {
		stats.Top3 = hits[2].Score
	}
	stats.Delta12 = stats.Top1 - stats.Top2
	stats.Delta13 = stats.Top1 - stats.Top3
	return stats
}

// RetrievalResult is the joined output of the hybrid search. Degraded marks
// that one sub-index failed or timed out and fusion ran on partial input.
type RetrievalResult struct {
	Hits     []SearchHit `json:"hits"`
	Stats    ScoreStats  `json:"stats"`
	Degraded bool        `json:"degraded"`
}

// Answer is the final response handed to the transport layer and stored in
// the response cache.
type Answer struct {
	Text       string      `json:"text"`
	Mode       QueryMode   `json:"mode"`
	Confidence Confidence  `json:"confidence"`
	Hits       []SearchHit `json:"hits"`
	Degraded   bool        `json:"degraded"`
	CacheHit   bool        `json:"cache_hit"`
}
