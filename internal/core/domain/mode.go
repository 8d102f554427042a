package domain

// QueryMode is the handling path assigned to a question. Exactly one mode per
// request; the assignment may be revised once, when retrieval statistics
// become available.
type QueryMode string

const (
	// ModeCost answers a numeric/financial field lookup.
	ModeCost QueryMode = "cost"
	// ModeDocument answers from the full content of a single document.
	ModeDocument QueryMode = "document"
	// ModeSearch lists or answers over snippets from multiple documents.
	ModeSearch QueryMode = "search"
	// ModeQA answers from general knowledge without document grounding.
	ModeQA QueryMode = "qa"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)
