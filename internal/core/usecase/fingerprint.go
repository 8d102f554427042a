package usecase

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// The cache fingerprint must collapse the many equivalent surface forms of
// the same question: case, whitespace, filler words, particle suffixes and
// token order all disappear before hashing.

var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "please": {}, "tell": {}, "me": {},
	"좀": {}, "주세요": {}, "알려줘": {}, "알려주세요": {}, "뭐야": {}, "무엇인가요": {},
}

// Trailing particles stripped from tokens, longest first so compound
// particles win over their prefixes.
var particleSuffixes = []string{
	"에서", "으로", "까지", "부터", "처럼", "보다", "이나",
	"은", "는", "이", "가", "을", "를", "의", "에", "로", "와", "과", "도", "만", "나",
}

// NormalizeQuery produces the canonical form behind the cache fingerprint:
// case-folded, whitespace-collapsed, fillers and particles removed, tokens
// sorted and deduplicated.
func NormalizeQuery(query string) string {
	tokens := tokenizeLower(query)
	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = stripParticle(token)
		if token == "" {
			continue
		}
		if _, filler := fillerWords[token]; filler {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		kept = append(kept, token)
	}
	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// Fingerprint hashes the normalized query into a stable cache key.
func Fingerprint(query string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizeQuery(query)))
	return fmt.Sprintf("%016x", h.Sum64())
}

func stripParticle(token string) string {
	runes := []rune(token)
	for _, suffix := range particleSuffixes {
		sr := []rune(suffix)
		if len(runes) > len(sr) && strings.HasSuffix(token, suffix) {
			return string(runes[:len(runes)-len(sr)])
		}
	}
	return token
}
