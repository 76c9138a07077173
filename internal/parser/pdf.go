package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragcore/internal/metadata"
)

// parsePDF extracts plain text page by page. Pages that fail to extract are
// recorded as warnings rather than aborting the whole document; a PDF that
// fails to open at all (encrypted, corrupt) is a terminal ErrParseFailed.
func parsePDF(in Input) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return Result{}, fmt.Errorf("%w: pdf has no pages", ErrParseFailed)
	}

	var elements []metadata.Element
	var warnings []string
	ordinal := 0

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			warnings = append(warnings, fmt.Sprintf("page %d is empty or unreadable", i))
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i, err))
			continue
		}
		for _, para := range splitParagraphs(text) {
			kind, level := classifyPDFLine(para)
			elements = append(elements, metadata.Element{
				Kind:     kind,
				Level:    level,
				Text:     para,
				Ordinal:  ordinal,
				Metadata: map[string]string{"page": fmt.Sprintf("%d", i)},
			})
			ordinal++
		}
	}

	if len(elements) == 0 {
		return Result{Warnings: append(warnings, "no extractable text found")}, nil
	}
	return Result{Elements: elements, Warnings: warnings}, nil
}

// classifyPDFLine applies a cheap heading heuristic: short, all-caps or
// title-case lines not ending in '.' or ',' read as headings. PDFs carry
// no structural markup, so this is best-effort, not authoritative.
func classifyPDFLine(line string) (metadata.ElementKind, int) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) == 0 || len(trimmed) > 80 || strings.Contains(trimmed, "\n") {
		return metadata.ElementParagraph, 0
	}
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, ",") {
		return metadata.ElementParagraph, 0
	}
	if trimmed == strings.ToUpper(trimmed) && strings.ToLower(trimmed) != strings.ToUpper(trimmed) {
		return metadata.ElementHeading, 1
	}
	words := strings.Fields(trimmed)
	if len(words) > 0 && len(words) <= 8 && isTitleCase(words) {
		return metadata.ElementHeading, 2
	}
	return metadata.ElementParagraph, 0
}

func isTitleCase(words []string) bool {
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		if !('A' <= r[0] && r[0] <= 'Z') {
			return false
		}
	}
	return true
}
