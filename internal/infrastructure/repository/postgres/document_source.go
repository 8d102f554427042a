// Package postgres reads the authoritative document store. The retrieval
// engine never writes documents; ingestion owns the table and this package
// only counts, streams and fetches rows that finished processing.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// statusReady marks documents whose text extraction completed; only those
// are indexable.
const statusReady = "ready"

type DocumentSource struct {
	db *sql.DB
}

func NewDocumentSource(db *sql.DB) *DocumentSource {
	return &DocumentSource{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *DocumentSource) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	category TEXT,
	extracted_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// CountDocuments reports how many documents are eligible for indexing. The
// same count backs the pre-swap drift check and the status endpoint.
func (s *DocumentSource) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE status = $1`, statusReady).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// IterateDocuments streams every ready document through fn in a stable
// order. Iteration stops on the first error fn returns.
func (s *DocumentSource) IterateDocuments(ctx context.Context, fn func(context.Context, domain.StoredDocument) error) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, filename, mime_type, storage_path, COALESCE(category, ''), extracted_text, created_at, updated_at
FROM documents
WHERE status = $1
ORDER BY id
`, statusReady)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc domain.StoredDocument
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Category, &doc.ExtractedText, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate documents: %w", err)
	}
	return nil
}

func (s *DocumentSource) GetByID(ctx context.Context, id string) (*domain.StoredDocument, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, COALESCE(category, ''), extracted_text, created_at, updated_at
FROM documents
WHERE id = $1 AND status = $2
`, id, statusReady)

	var doc domain.StoredDocument
	err := row.Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Category, &doc.ExtractedText, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}
