package domain

import "time"

// IndexVersion identifies one immutable build of the lexical+semantic index
// pair. Exactly one version is active at a time; builds land in a staging
// location and become active only through the atomic swap.
type IndexVersion struct {
	VersionID string    `json:"version_id"`
	BuiltAt   time.Time `json:"built_at"`
	DocCount  int       `json:"doc_count"`
}

// IndexStatus is the administrative view over the active version compared to
// the authoritative document store.
type IndexStatus struct {
	ActiveVersion string    `json:"active_version"`
	DocCount      int       `json:"doc_count"`
	StoreCount    int       `json:"store_count"`
	LastBuildAt   time.Time `json:"last_build_at"`
	Drift         bool      `json:"drift"`
}

// Chunk is one indexed slice of a document page. Immutable once indexed;
// superseded, never mutated, on reindex.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// ReindexRequest travels over the queue from the admin API to the worker.
// The version id is minted by the requester so it can be reported before the
// build finishes.
type ReindexRequest struct {
	VersionID   string    `json:"version_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
