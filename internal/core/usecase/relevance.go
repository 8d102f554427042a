package usecase

import (
	"strings"
	"unicode"
)

// Relevance heuristics are pure functions over (query tokens, candidate
// text) so they stay unit-testable without a live index. They exist to break
// ties when the two sub-indexes disagree, or when one of them discriminates
// poorly (OCR-noisy text tends to favor lexical overlap over vector
// similarity).

// lengthPenaltyPivot is the chunk size (in runes) past which the
// length-normalization penalty starts to bite.
const lengthPenaltyPivot = 800

func tokenOverlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// phraseMatch reports whether the whole normalized query occurs verbatim in
// the candidate text.
func phraseMatch(query, text string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), q)
}

// lengthPenalty grows smoothly from 0 toward 1 as the candidate exceeds the
// pivot size, so oversized chunks cannot win on raw term volume alone.
func lengthPenalty(text string) float64 {
	excess := float64(len([]rune(text)) - lengthPenaltyPivot)
	if excess <= 0 {
		return 0
	}
	return excess / (excess + lengthPenaltyPivot)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenizeLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// tokenizeLower splits on anything that is not a letter or digit and lower
// cases the rest. Unicode-aware so Hangul and Latin queries tokenize the
// same way.
func tokenizeLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
