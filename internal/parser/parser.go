// Package parser implements the Parser (C3): it turns a raw document byte
// stream into an ordered list of structural Elements (headings, paragraphs,
// tables, and an "other" fallback for unparseable regions), dispatching by
// MIME type to a format-specific strategy.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"ragcore/internal/metadata"
)

// ErrUnsupportedMimeType is returned when no parsing strategy recognizes the
// document's MIME type.
var ErrUnsupportedMimeType = errors.New("parser: unsupported mime type")

// ErrParseFailed is the terminal error class: the document matched a known
// strategy but could not be parsed at all (corrupt file, encrypted PDF,
// etc.). The Job Runner treats this as non-retryable.
var ErrParseFailed = errors.New("parser: parse failed")

// MaxTableRows is the row-count threshold above which a table Element is
// flagged Oversize. The Parser always emits one Element per table; row-group
// splitting of oversize tables happens downstream in the Chunker.
const MaxTableRows = 200

// Input is the raw material the Parser consumes.
type Input struct {
	MimeType string
	Filename string
	Data     []byte
}

// Result is the Parser's output: an ordered Element list plus any
// non-fatal warnings (e.g. a page that failed to extract but didn't abort
// the whole document).
type Result struct {
	Elements []metadata.Element
	Warnings []string
}

// Parser dispatches Input to the right format strategy by MIME type.
type Parser struct {
	maxTableRows int
}

// New returns a Parser with default table-row bounds.
func New() *Parser {
	return &Parser{maxTableRows: MaxTableRows}
}

// Parse routes in to a format strategy based on MimeType, falling back to
// extension sniffing from Filename when MimeType is empty or generic.
func (p *Parser) Parse(in Input) (Result, error) {
	kind := classify(in.MimeType, in.Filename)
	switch kind {
	case kindPDF:
		return parsePDF(in)
	case kindXLSX:
		return parseXLSX(in, p.maxTableRows)
	case kindHTML:
		return parseHTML(in)
	case kindMarkdown:
		return parseMarkdown(in)
	case kindDelimited:
		return parseDelimited(in, p.maxTableRows)
	case kindPlainText:
		return parsePlainText(in)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, in.MimeType)
	}
}

type docKind int

const (
	kindUnknown docKind = iota
	kindPDF
	kindXLSX
	kindHTML
	kindMarkdown
	kindDelimited
	kindPlainText
)

func classify(mimeType, filename string) docKind {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "pdf"):
		return kindPDF
	case strings.Contains(m, "spreadsheet"), strings.Contains(m, "excel"):
		return kindXLSX
	case strings.Contains(m, "html"):
		return kindHTML
	case strings.Contains(m, "markdown"):
		return kindMarkdown
	case strings.Contains(m, "csv"), strings.Contains(m, "tsv"):
		return kindDelimited
	case strings.Contains(m, "text/plain"):
		return kindPlainText
	}

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return kindPDF
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return kindXLSX
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return kindHTML
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return kindMarkdown
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"):
		return kindDelimited
	case strings.HasSuffix(lower, ".txt"):
		return kindPlainText
	}
	return kindUnknown
}

// otherElement builds the "other" fallback Element used whenever a region
// of the document can't be classified into a structural role.
func otherElement(documentID, text string, ordinal int) metadata.Element {
	return metadata.Element{
		DocumentID: documentID,
		Kind:       metadata.ElementOther,
		Text:       text,
		Ordinal:    ordinal,
	}
}
