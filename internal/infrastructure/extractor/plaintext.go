package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func extractPlainText(filename string, raw []byte) ([]string, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("text document is not valid utf-8: %s", filename)
	}
	return []string{strings.TrimSpace(string(raw))}, nil
}
