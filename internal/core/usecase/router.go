package usecase

import (
	"strings"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// Low-confidence fallback behaviors. "list" answers with an enumeration of
// candidate documents instead of asserting a single answer; "decline"
// refuses to ground the answer at all.
const (
	FallbackList    = "list"
	FallbackDecline = "decline"
)

// RouterConfig holds the confidence thresholds and the lexical cue families.
// The thresholds were tuned empirically on the original corpus; treat them
// as per-corpus configuration, not constants with intrinsic meaning.
type RouterConfig struct {
	LowConfidenceScore float64
	LowConfidenceDelta float64
	Fallback           string

	CostCues     []string
	DocumentCues []string
	SearchCues   []string
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		LowConfidenceScore: 0.35,
		LowConfidenceDelta: 0.05,
		Fallback:           FallbackList,

		CostCues: []string{
			"cost", "price", "fee", "amount", "quote", "much",
			"가격", "비용", "금액", "단가", "얼마",
		},
		DocumentCues: []string{
			"document", "content", "contents", "full", "spec", "specification", "detail", "details", "describe",
			"문서", "내용", "전체", "사양", "상세", "설명",
		},
		SearchCues: []string{
			"list", "find", "search", "which", "all", "any", "documents",
			"목록", "검색", "찾아", "어떤", "모든", "관련",
		},
	}
}

func (c RouterConfig) normalized() RouterConfig {
	out := c
	def := DefaultRouterConfig()
	if out.LowConfidenceScore <= 0 {
		out.LowConfidenceScore = def.LowConfidenceScore
	}
	if out.LowConfidenceDelta <= 0 {
		out.LowConfidenceDelta = def.LowConfidenceDelta
	}
	if out.Fallback != FallbackList && out.Fallback != FallbackDecline {
		out.Fallback = def.Fallback
	}
	if len(out.CostCues) == 0 {
		out.CostCues = def.CostCues
	}
	if len(out.DocumentCues) == 0 {
		out.DocumentCues = def.DocumentCues
	}
	if len(out.SearchCues) == 0 {
		out.SearchCues = def.SearchCues
	}
	return out
}

// QueryRouter classifies a question into a handling mode. Pre-classification
// is lexical-only; the final classification re-evaluates with real retrieval
// scores and settles the confidence level. A request transitions
// unclassified -> pre-classified -> final exactly once.
type QueryRouter struct {
	cfg RouterConfig

	costCues     map[string]struct{}
	documentCues map[string]struct{}
	searchCues   map[string]struct{}
}

func NewQueryRouter(cfg RouterConfig) *QueryRouter {
	cfg = cfg.normalized()
	return &QueryRouter{
		cfg:          cfg,
		costCues:     cueSet(cfg.CostCues),
		documentCues: cueSet(cfg.DocumentCues),
		searchCues:   cueSet(cfg.SearchCues),
	}
}

// Classify guesses a mode from lexical cues alone, before paying for
// retrieval. Classification never fails: unrecognized input defaults to QA,
// the one mode that cannot fabricate document grounding.
func (qr *QueryRouter) Classify(query string) domain.QueryMode {
	tokens := tokenizeLower(query)

	cost := qr.matchesAny(tokens, qr.costCues)
	document := qr.matchesAny(tokens, qr.documentCues)
	search := qr.matchesAny(tokens, qr.searchCues)

	switch {
	case document:
		// Full content is a strict superset of a numeric field answer, so
		// DOCUMENT wins whenever both are plausible.
		return domain.ModeDocument
	case cost:
		return domain.ModeCost
	case search:
		return domain.ModeSearch
	default:
		return domain.ModeQA
	}
}

// ClassifyWithRetrieval settles the final mode and confidence using the real
// score statistics. Weak evidence is never presented as a confident single
// answer: it either downgrades to a listing mode or the request is declined
// by the answer assembly, per the configured fallback.
func (qr *QueryRouter) ClassifyWithRetrieval(
	query string,
	preMode domain.QueryMode,
	hits []domain.SearchHit,
	stats domain.ScoreStats,
) (domain.QueryMode, domain.Confidence) {
	if len(hits) == 0 {
		// Empty retrieval is a valid outcome; without evidence the only
		// honest path is ungrounded QA at low confidence.
		return domain.ModeQA, domain.ConfidenceLow
	}

	confidence := domain.ConfidenceHigh
	if stats.Top1 < qr.cfg.LowConfidenceScore || stats.Delta12 < qr.cfg.LowConfidenceDelta {
		confidence = domain.ConfidenceLow
	}

	mode := preMode
	if preMode == domain.ModeQA && confidence == domain.ConfidenceHigh {
		// The cue pass recognized nothing but retrieval found strong
		// evidence: revise once toward a grounded mode.
		if dominantDocument(hits) {
			mode = domain.ModeDocument
		} else {
			mode = domain.ModeSearch
		}
	}

	if confidence == domain.ConfidenceLow && mode != domain.ModeQA && qr.cfg.Fallback == FallbackList {
		mode = domain.ModeSearch
	}

	return mode, confidence
}

// Fallback exposes the configured low-confidence behavior to answer
// assembly.
func (qr *QueryRouter) Fallback() string {
	return qr.cfg.Fallback
}

// dominantDocument reports whether the head of the ranked list is owned by a
// single document.
func dominantDocument(hits []domain.SearchHit) bool {
	if len(hits) < 2 {
		return true
	}
	return hits[0].DocumentID == hits[1].DocumentID
}

// matchesAny checks tokens against a cue family. Latin cues match exactly;
// Hangul cues match as prefixes because Korean tokens arrive with particles
// still attached (비용이, 얼마인가요).
func (qr *QueryRouter) matchesAny(tokens []string, cues map[string]struct{}) bool {
	for _, token := range tokens {
		if _, ok := cues[token]; ok {
			return true
		}
		for cue := range cues {
			if !isASCII(cue) && strings.HasPrefix(token, cue) {
				return true
			}
		}
	}
	return false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func cueSet(cues []string) map[string]struct{} {
	out := make(map[string]struct{}, len(cues))
	for _, cue := range cues {
		cue = strings.ToLower(strings.TrimSpace(cue))
		if cue != "" {
			out[cue] = struct{}{}
		}
	}
	return out
}
