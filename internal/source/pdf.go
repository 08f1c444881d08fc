package source

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for input without a PDF header.
var ErrNotPDF = errors.New("not a PDF document")

// ParseError is returned when text cannot be extracted from a document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extracting text: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var blankRuns = regexp.MustCompile(`\n\s*\n`)

// PDFExtractor extracts page text with ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns the text of every page, each preceded by a
// "--- Page N ---" marker, with runs of blank lines collapsed to one.
func (e *PDFExtractor) Extract(data []byte) (text string, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return "", &ParseError{Err: ErrNotPDF}
	}

	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ParseError{Err: fmt.Errorf("malformed PDF: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ParseError{Err: err}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i)
		sb.WriteString(pageText)
	}

	text = strings.TrimSpace(CollapseBlankLines(sb.String()))
	if text == "" || strings.TrimSpace(pageMarkers.ReplaceAllString(text, "")) == "" {
		return "", &ParseError{Err: errors.New("no extractable text")}
	}
	return text, nil
}

var pageMarkers = regexp.MustCompile(`--- Page \d+ ---`)

// CollapseBlankLines replaces every run of blank lines with a single blank
// line so paragraph boundaries survive.
func CollapseBlankLines(text string) string {
	return blankRuns.ReplaceAllString(text, "\n\n")
}
