// Package extract provides per-page text extraction from PDF documents.
package extract

import (
	"bytes"
	"fmt"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/ledongthuc/pdf"
)

// Extractor extracts plain text from PDF bytes, one entry per page.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages returns the text of every page in document order. Page numbers are 1-based
// and contiguous; a page without a text layer yields an empty Text. Fails with
// models.ErrUnreadableDocument when content is not a PDF or no page carries any text
// (image-only scans are not OCRed).
func (e *Extractor) ExtractPages(content []byte) (pages []models.Page, err error) {
	// The PDF parser panics on some malformed inputs instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: parse PDF: %v", models.ErrUnreadableDocument, r)
		}
	}()
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrUnreadableDocument)
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %v", models.ErrUnreadableDocument, err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: document has no pages", models.ErrUnreadableDocument)
	}
	pages = make([]models.Page, 0, numPages)
	hasText := false
	for i := 1; i <= numPages; i++ {
		pages = append(pages, models.Page{Number: i, Text: pageText(r.Page(i))})
		if pages[i-1].Text != "" {
			hasText = true
		}
	}
	if !hasText {
		return nil, fmt.Errorf("%w: no extractable text in %d pages", models.ErrUnreadableDocument, numPages)
	}
	return pages, nil
}

// pageText returns the plain text of page, or "" when the page is missing or its
// content stream cannot be decoded.
func pageText(page pdf.Page) string {
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return Preprocess(text)
}
