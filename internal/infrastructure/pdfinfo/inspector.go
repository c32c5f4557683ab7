package pdfinfo

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Inspector reports page counts for uploaded payloads. Image formats are a
// single page by definition; only PDFs are actually parsed.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) PageCount(payload []byte, filename string) (int, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext != "pdf" {
		return 1, nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return reader.NumPage(), nil
}
