package usecase

import (
	"testing"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

func TestClassifyKeywordFamilies(t *testing.T) {
	router := NewQueryRouter(DefaultRouterConfig())

	cases := []struct {
		query string
		want  domain.QueryMode
	}{
		{"What is the price of the NVR unit?", domain.ModeCost},
		{"설치 비용이 얼마인가요?", domain.ModeCost},
		{"Show the full specification document", domain.ModeDocument},
		{"계약서 전체 내용 보여줘", domain.ModeDocument},
		{"Which documents mention the warranty?", domain.ModeSearch},
		{"보증 관련 문서 목록", domain.ModeDocument},
		{"Why is the sky blue", domain.ModeQA},
	}

	for _, tc := range cases {
		if got := router.Classify(tc.query); got != tc.want {
			t.Fatalf("Classify(%q): expected %s, got %s", tc.query, tc.want, got)
		}
	}
}

func TestClassifyDocumentBeatsCostOnTie(t *testing.T) {
	router := NewQueryRouter(DefaultRouterConfig())

	// Price and description both requested: full content is a superset of
	// a numeric field answer.
	if got := router.Classify("price and full specification of the camera"); got != domain.ModeDocument {
		t.Fatalf("expected DOCUMENT to win tie over COST, got %s", got)
	}
}

func TestClassifyNeverRaisesOnMalformedInput(t *testing.T) {
	router := NewQueryRouter(DefaultRouterConfig())
	for _, q := range []string{"", "   ", "???!!!", "\x00\x01"} {
		if got := router.Classify(q); got != domain.ModeQA {
			t.Fatalf("Classify(%q): expected safe default QA, got %s", q, got)
		}
	}
}

func TestClassifyWithRetrievalEmptyHits(t *testing.T) {
	router := NewQueryRouter(DefaultRouterConfig())

	mode, conf := router.ClassifyWithRetrieval("anything", domain.ModeCost, nil, domain.ScoreStats{})
	if mode != domain.ModeQA || conf != domain.ConfidenceLow {
		t.Fatalf("expected QA/low for empty hits, got %s/%s", mode, conf)
	}
}

func TestClassifyWithRetrievalConfidenceMonotonic(t *testing.T) {
	cfg := DefaultRouterConfig()
	router := NewQueryRouter(cfg)
	hits := []domain.SearchHit{
		{DocumentID: "doc-1", Page: 1, Score: 0.8},
		{DocumentID: "doc-2", Page: 1, Score: 0.5},
	}

	strong := domain.ScoreStats{Top1: 0.8, Top2: 0.5, Delta12: 0.3}
	_, conf := router.ClassifyWithRetrieval("q", domain.ModeCost, hits, strong)
	if conf != domain.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", conf)
	}

	// Lowering delta12 below the threshold while holding everything else
	// constant must always flip high to low.
	weak := strong
	weak.Delta12 = cfg.LowConfidenceDelta / 2
	_, conf = router.ClassifyWithRetrieval("q", domain.ModeCost, hits, weak)
	if conf != domain.ConfidenceLow {
		t.Fatalf("expected low confidence after delta drop, got %s", conf)
	}
}

func TestClassifyWithRetrievalLowTop1(t *testing.T) {
	cfg := DefaultRouterConfig()
	router := NewQueryRouter(cfg)
	hits := []domain.SearchHit{{DocumentID: "doc-1", Page: 1, Score: 0.1}}

	stats := domain.ScoreStats{Top1: cfg.LowConfidenceScore / 2, Delta12: 1}
	_, conf := router.ClassifyWithRetrieval("q", domain.ModeSearch, hits, stats)
	if conf != domain.ConfidenceLow {
		t.Fatalf("expected low confidence for weak top1, got %s", conf)
	}
}

func TestClassifyWithRetrievalRevisesUnrecognizedOnce(t *testing.T) {
	router := NewQueryRouter(DefaultRouterConfig())

	multiDoc := []domain.SearchHit{
		{DocumentID: "doc-1", Page: 1, Score: 0.9},
		{DocumentID: "doc-2", Page: 4, Score: 0.6},
	}
	stats := domain.ScoreStats{Top1: 0.9, Top2: 0.6, Delta12: 0.3}

	mode, conf := router.ClassifyWithRetrieval("nvr storage capacity", domain.ModeQA, multiDoc, stats)
	if conf != domain.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", conf)
	}
	if mode != domain.ModeSearch && mode != domain.ModeDocument {
		t.Fatalf("expected grounded mode for strong evidence, got %s", mode)
	}

	singleDoc := []domain.SearchHit{
		{DocumentID: "doc-1", Page: 1, Score: 0.9},
		{DocumentID: "doc-1", Page: 2, Score: 0.7},
	}
	mode, _ = router.ClassifyWithRetrieval("nvr storage capacity", domain.ModeQA, singleDoc, stats)
	if mode != domain.ModeDocument {
		t.Fatalf("expected DOCUMENT for single dominant document, got %s", mode)
	}
}

func TestClassifyWithRetrievalListFallbackDowngradesMode(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.Fallback = FallbackList
	router := NewQueryRouter(cfg)

	hits := []domain.SearchHit{
		{DocumentID: "doc-1", Page: 1, Score: 0.2},
		{DocumentID: "doc-2", Page: 1, Score: 0.19},
	}
	stats := domain.ScoreStats{Top1: 0.2, Top2: 0.19, Delta12: 0.01}

	mode, conf := router.ClassifyWithRetrieval("q", domain.ModeCost, hits, stats)
	if conf != domain.ConfidenceLow {
		t.Fatalf("expected low confidence, got %s", conf)
	}
	if mode != domain.ModeSearch {
		t.Fatalf("expected listing mode on low-confidence fallback, got %s", mode)
	}
}
