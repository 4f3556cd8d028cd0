// Package extract pulls plain text out of PDF files. Extraction failures are
// per-document and recoverable: the pipeline skips the file and moves on.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dslipak/pdf"
)

// PDF extracts text page by page using a pure-Go PDF reader.
type PDF struct {
	maxPages int // 0 means no limit
}

// NewPDF creates an extractor that reads at most maxPages pages per document.
func NewPDF(maxPages int) *PDF {
	if maxPages < 0 {
		maxPages = 0
	}
	return &PDF{maxPages: maxPages}
}

// Extract returns the concatenated page text and the number of pages read.
func (e *PDF) Extract(path string) (string, int, error) {
	reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	total := reader.NumPage()
	pages := total
	if e.maxPages > 0 && pages > e.maxPages {
		pages = e.maxPages
	}
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("reading page %d of %s: %w", i, path, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), pages, nil
}

var (
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes extracted text: strips control characters, collapses runs
// of spaces and excessive blank lines.
func Clean(text string) string {
	text = controlRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
