package extractor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

type memStorage struct {
	files map[string][]byte
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.files[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestExtractPlainText(t *testing.T) {
	storage := &memStorage{files: map[string][]byte{
		"docs/readme.txt": []byte("  NVR installation notes\nline two  "),
	}}
	extractor := New(storage)

	pages, err := extractor.Extract(context.Background(), &domain.StoredDocument{
		Filename:    "readme.txt",
		MimeType:    "text/plain",
		StoragePath: "docs/readme.txt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected one page, got %d", len(pages))
	}
	if !strings.Contains(pages[0], "installation notes") {
		t.Fatalf("unexpected page content: %q", pages[0])
	}
}

func TestExtractPlainTextRejectsBinary(t *testing.T) {
	storage := &memStorage{files: map[string][]byte{
		"docs/blob.txt": {0xff, 0xfe, 0x00, 0x80},
	}}
	extractor := New(storage)

	_, err := extractor.Extract(context.Background(), &domain.StoredDocument{
		Filename:    "blob.txt",
		MimeType:    "text/plain",
		StoragePath: "docs/blob.txt",
	})
	if err == nil {
		t.Fatalf("expected error for invalid utf-8")
	}
}

func TestExtractWorkbookOnePagePerSheet(t *testing.T) {
	workbook := excelize.NewFile()
	workbook.SetCellValue("Sheet1", "A1", "item")
	workbook.SetCellValue("Sheet1", "B1", "price")
	workbook.SetCellValue("Sheet1", "A2", "NVR 8ch")
	workbook.SetCellValue("Sheet1", "B2", "1,200,000")
	if _, err := workbook.NewSheet("Terms"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	workbook.SetCellValue("Terms", "A1", "warranty 24 months")

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	storage := &memStorage{files: map[string][]byte{"docs/quote.xlsx": buf.Bytes()}}
	extractor := New(storage)

	pages, err := extractor.Extract(context.Background(), &domain.StoredDocument{
		Filename:    "quote.xlsx",
		MimeType:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		StoragePath: "docs/quote.xlsx",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected one page per sheet, got %d", len(pages))
	}
	if !strings.Contains(pages[0], "NVR 8ch") || !strings.Contains(pages[0], "1,200,000") {
		t.Fatalf("price row lost its label: %q", pages[0])
	}
	if !strings.Contains(pages[1], "warranty") {
		t.Fatalf("second sheet missing: %q", pages[1])
	}
}

func TestExtractFallsBackToExtension(t *testing.T) {
	storage := &memStorage{files: map[string][]byte{
		"docs/notes.md": []byte("# heading"),
	}}
	extractor := New(storage)

	pages, err := extractor.Extract(context.Background(), &domain.StoredDocument{
		Filename:    "notes.md",
		MimeType:    "application/octet-stream",
		StoragePath: "docs/notes.md",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || pages[0] != "# heading" {
		t.Fatalf("unexpected pages: %v", pages)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	storage := &memStorage{files: map[string][]byte{"docs/a.bin": {1, 2, 3}}}
	extractor := New(storage)

	_, err := extractor.Extract(context.Background(), &domain.StoredDocument{
		Filename:    "a.bin",
		MimeType:    "application/octet-stream",
		StoragePath: "docs/a.bin",
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported document format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
