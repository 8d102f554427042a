// Package extractor turns stored document blobs into page texts. The format
// is picked by MIME type with a filename-extension fallback; scanned
// documents arrive already OCRed, so extraction here is text-layer only.
package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

// Extract returns one text per page. Spreadsheets count each sheet as a
// page; plain text is a single page.
func (e *Extractor) Extract(ctx context.Context, doc *domain.StoredDocument) ([]string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	switch kindOf(doc) {
	case kindPDF:
		return extractPDF(raw)
	case kindSpreadsheet:
		return extractWorkbook(raw)
	case kindPlainText:
		return extractPlainText(doc.Filename, raw)
	default:
		return nil, fmt.Errorf("unsupported document format: %s (%s)", doc.Filename, doc.MimeType)
	}
}

type documentKind int

const (
	kindUnknown documentKind = iota
	kindPDF
	kindSpreadsheet
	kindPlainText
)

func kindOf(doc *domain.StoredDocument) documentKind {
	mime := strings.ToLower(strings.TrimSpace(doc.MimeType))
	switch {
	case mime == "application/pdf":
		return kindPDF
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mime == "application/vnd.ms-excel":
		return kindSpreadsheet
	case strings.HasPrefix(mime, "text/"):
		return kindPlainText
	}

	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".pdf":
		return kindPDF
	case ".xlsx", ".xlsm":
		return kindSpreadsheet
	case ".txt", ".md", ".csv":
		return kindPlainText
	}
	return kindUnknown
}
