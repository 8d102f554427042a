package usecase

import (
	"fmt"
	"sort"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// FusionWeights controls how the two sub-search signals blend into one
// ranked list. Lexical and Semantic need not sum to 1; they are normalized
// at use. The remaining weights shape the secondary relevance adjustment.
type FusionWeights struct {
	Lexical  float64
	Semantic float64

	Base        float64
	Overlap     float64
	PhraseBonus float64
	LengthNorm  float64
}

func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Lexical:     0.6,
		Semantic:    0.4,
		Base:        0.6,
		Overlap:     0.3,
		PhraseBonus: 0.1,
		LengthNorm:  0.1,
	}
}

func (w FusionWeights) normalized() FusionWeights {
	out := w
	def := DefaultFusionWeights()
	if out.Lexical < 0 {
		out.Lexical = 0
	}
	if out.Semantic < 0 {
		out.Semantic = 0
	}
	if out.Lexical+out.Semantic == 0 {
		out.Lexical, out.Semantic = def.Lexical, def.Semantic
	}
	sum := out.Lexical + out.Semantic
	out.Lexical /= sum
	out.Semantic /= sum

	if out.Base <= 0 {
		out.Base = def.Base
	}
	if out.Overlap < 0 {
		out.Overlap = def.Overlap
	}
	if out.PhraseBonus < 0 {
		out.PhraseBonus = def.PhraseBonus
	}
	if out.LengthNorm < 0 {
		out.LengthNorm = def.LengthNorm
	}
	return out
}

// fuseHits merges the two sub-search result sets by document id and page,
// keeping the max-scoring variant per location, blends the weighted index
// signals with the relevance heuristics, and returns the full candidate list
// sorted by score descending with deterministic tie-breaks (document id,
// then page, ascending).
func fuseHits(query string, lexical, semantic []domain.SearchHit, weights FusionWeights) []domain.SearchHit {
	w := weights.normalized()
	queryTokens := toTokenSet(query)

	acc := make(map[string]domain.SearchHit, len(lexical)+len(semantic))

	merge := func(hits []domain.SearchHit, lexicalSide bool, norm float64) {
		for _, hit := range hits {
			key := hitKey(hit)
			score := 0.0
			if norm > 0 {
				score = hit.Score / norm
			}
			current, ok := acc[key]
			if !ok {
				current = hit
				current.LexicalScore = 0
				current.SemanticScore = 0
			}
			if lexicalSide {
				if score > current.LexicalScore {
					current.LexicalScore = score
				}
			} else {
				if score > current.SemanticScore {
					current.SemanticScore = score
				}
			}
			if current.Snippet == "" && hit.Snippet != "" {
				current.Snippet = hit.Snippet
			}
			if current.Filename == "" && hit.Filename != "" {
				current.Filename = hit.Filename
			}
			acc[key] = current
		}
	}

	merge(lexical, true, maxScore(lexical))
	merge(semantic, false, maxScore(semantic))

	out := make([]domain.SearchHit, 0, len(acc))
	for _, hit := range acc {
		base := w.Lexical*hit.LexicalScore + w.Semantic*hit.SemanticScore
		overlap := tokenOverlap(queryTokens, toTokenSet(hit.Snippet))
		bonus := 0.0
		if phraseMatch(query, hit.Snippet) {
			bonus = w.PhraseBonus
		}
		hit.Score = w.Base*base + w.Overlap*overlap + bonus - w.LengthNorm*lengthPenalty(hit.Snippet)
		if hit.Score < 0 {
			hit.Score = 0
		}
		out = append(out, hit)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Page < out[j].Page
	})

	return out
}

func hitKey(hit domain.SearchHit) string {
	return fmt.Sprintf("%s:%d", hit.DocumentID, hit.Page)
}

func maxScore(hits []domain.SearchHit) float64 {
	max := 0.0
	for _, hit := range hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	return max
}
