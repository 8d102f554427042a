package usecase

import (
	"fmt"
	"strings"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// modeAssembler builds the generator input for one QueryMode. One
// implementation per mode, selected exactly once after the final
// classification; the retrieval core itself never talks to the generator.
type modeAssembler interface {
	Mode() domain.QueryMode
	BuildPrompt(query string, hits []domain.SearchHit) (prompt, contextBlock string)
}

func assemblerFor(mode domain.QueryMode) modeAssembler {
	switch mode {
	case domain.ModeCost:
		return costAssembler{}
	case domain.ModeDocument:
		return documentAssembler{}
	case domain.ModeSearch:
		return searchAssembler{}
	default:
		return qaAssembler{}
	}
}

type costAssembler struct{}

func (costAssembler) Mode() domain.QueryMode { return domain.ModeCost }

func (costAssembler) BuildPrompt(query string, hits []domain.SearchHit) (string, string) {
	prompt := fmt.Sprintf(
		"Answer the question by extracting the exact numeric or financial value from the evidence. "+
			"Quote the value verbatim and name its source document. "+
			"If the evidence holds no such value, answer exactly: %s\n\nQuestion: %s",
		domain.NoGroundedAnswer, query,
	)
	return prompt, evidenceBlock(hits)
}

type documentAssembler struct{}

func (documentAssembler) Mode() domain.QueryMode { return domain.ModeDocument }

func (documentAssembler) BuildPrompt(query string, hits []domain.SearchHit) (string, string) {
	prompt := fmt.Sprintf(
		"Answer the question from the content of the matched document. "+
			"Stay strictly within the evidence; do not add outside knowledge. "+
			"If the evidence is insufficient, answer exactly: %s\n\nQuestion: %s",
		domain.NoGroundedAnswer, query,
	)
	// Full-content mode: restrict the context to the top-scoring document.
	return prompt, evidenceBlock(sameDocumentHits(hits))
}

type searchAssembler struct{}

func (searchAssembler) Mode() domain.QueryMode { return domain.ModeSearch }

func (searchAssembler) BuildPrompt(query string, hits []domain.SearchHit) (string, string) {
	prompt := fmt.Sprintf(
		"Answer the question over the listed documents. Mention every relevant document by name "+
			"and summarize what each contributes. "+
			"If none are relevant, answer exactly: %s\n\nQuestion: %s",
		domain.NoGroundedAnswer, query,
	)
	return prompt, evidenceBlock(hits)
}

type qaAssembler struct{}

func (qaAssembler) Mode() domain.QueryMode { return domain.ModeQA }

func (qaAssembler) BuildPrompt(query string, _ []domain.SearchHit) (string, string) {
	prompt := fmt.Sprintf(
		"Answer the general-knowledge question concisely. Do not claim any company document as a source.\n\nQuestion: %s",
		query,
	)
	return prompt, ""
}

// listingAnswer enumerates candidate documents without asserting a single
// answer. Used on low confidence with the "list" fallback; it deliberately
// bypasses the generator so nothing can be fabricated.
func listingAnswer(hits []domain.SearchHit) string {
	var b strings.Builder
	b.WriteString("The evidence is inconclusive. Candidate documents:\n")
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.DocumentID]; dup {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		name := hit.Filename
		if name == "" {
			name = hit.DocumentID
		}
		fmt.Fprintf(&b, "- %s (p.%d, score %.2f)\n", name, hit.Page, hit.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

func evidenceBlock(hits []domain.SearchHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] %s (p.%d)\n%s\n\n", i+1, hit.Filename, hit.Page, hit.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sameDocumentHits(hits []domain.SearchHit) []domain.SearchHit {
	if len(hits) == 0 {
		return hits
	}
	top := hits[0].DocumentID
	out := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.DocumentID == top {
			out = append(out, hit)
		}
	}
	return out
}
