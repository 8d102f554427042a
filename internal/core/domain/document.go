package domain

import "time"

// StoredDocument is the read model over the authoritative document store.
// The ingestion pipeline that writes it is external; this subsystem only
// reads and counts.
type StoredDocument struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	StoragePath string    `json:"storage_path"`
	Category    string    `json:"category,omitempty"`
	// ExtractedText holds pre-extracted page text separated by form feeds.
	// Empty when extraction has to run against the stored object.
	ExtractedText string    `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
