package parser

import (
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

// parseHTML strips chrome (nav, ads, boilerplate) with go-readability before
// converting to Markdown, falling back to the full document when
// Readability can't identify an article body; it then reuses the Markdown
// heading/paragraph splitter. This avoids a second structural parser: once
// HTML is normalized to Markdown, heading levels and paragraph boundaries
// fall out the same way regardless of source format.
func parseHTML(in Input) (Result, error) {
	html := extractArticleHTML(in.Data, in.Filename)

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	result, err := parseMarkdown(Input{MimeType: "text/markdown", Filename: in.Filename, Data: []byte(md)})
	if err != nil {
		return Result{}, err
	}
	if len(result.Elements) == 0 {
		return Result{Warnings: []string{"html document produced no text content"}}, nil
	}
	return result, nil
}

// extractArticleHTML returns Readability's best guess at the document's
// main content, or the original HTML unchanged if Readability can't find
// one (a documentation fragment, a page that's mostly a table, etc.).
func extractArticleHTML(data []byte, filename string) string {
	base, _ := url.Parse(filename)
	art, err := readability.FromReader(strings.NewReader(string(data)), base)
	if err != nil || strings.TrimSpace(art.Content) == "" {
		return string(data)
	}
	return art.Content
}
