package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

func newSourceWithMock(t *testing.T) (*DocumentSource, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentSource{db: db}, mock, func() { _ = db.Close() }
}

func TestCountDocumentsOnlyCountsReady(t *testing.T) {
	source, mock, done := newSourceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").
		WithArgs(statusReady).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := source.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIterateDocumentsStreamsRowsInOrder(t *testing.T) {
	source, mock, done := newSourceWithMock(t)
	defer done()

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "filename", "mime_type", "storage_path", "category", "extracted_text", "created_at", "updated_at"}).
		AddRow("doc-1", "a.pdf", "application/pdf", "docs/a.pdf", "manual", "page one\ftwo", now, now).
		AddRow("doc-2", "b.xlsx", "application/vnd.ms-excel", "docs/b.xlsx", "", "sheet text", now, now)

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs(statusReady).
		WillReturnRows(rows)

	var seen []string
	err := source.IterateDocuments(context.Background(), func(_ context.Context, doc domain.StoredDocument) error {
		seen = append(seen, doc.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "doc-1" || seen[1] != "doc-2" {
		t.Fatalf("unexpected iteration order: %v", seen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIterateDocumentsStopsOnCallbackError(t *testing.T) {
	source, mock, done := newSourceWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "filename", "mime_type", "storage_path", "category", "extracted_text", "created_at", "updated_at"}).
		AddRow("doc-1", "a.pdf", "application/pdf", "docs/a.pdf", "", "text", now, now).
		AddRow("doc-2", "b.pdf", "application/pdf", "docs/b.pdf", "", "text", now, now)

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs(statusReady).
		WillReturnRows(rows)

	boom := errors.New("stop here")
	calls := 0
	err := source.IterateDocuments(context.Background(), func(context.Context, domain.StoredDocument) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error surfaced, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("iteration must stop on first error, got %d calls", calls)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	source, mock, done := newSourceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing", statusReady).
		WillReturnError(sql.ErrNoRows)

	_, err := source.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
