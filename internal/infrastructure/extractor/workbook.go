package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractWorkbook flattens each sheet into one page of text, one row per
// line with cells joined by tabs. Quote sheets are mostly label/value
// grids, so this keeps figures next to their labels.
func extractWorkbook(raw []byte) ([]string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		pages = append(pages, strings.TrimSpace(b.String()))
	}
	return pages, nil
}
