package parser

import (
	"bufio"
	"regexp"
	"strings"

	"ragcore/internal/metadata"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// parsePlainText splits on blank lines into paragraph Elements. No heading
// detection is attempted since plain text carries no structural markers.
func parsePlainText(in Input) (Result, error) {
	paras := splitParagraphs(string(in.Data))
	if len(paras) == 0 {
		return Result{Warnings: []string{"document produced no text content"}}, nil
	}

	elements := make([]metadata.Element, 0, len(paras))
	for i, p := range paras {
		elements = append(elements, metadata.Element{
			Kind:    metadata.ElementParagraph,
			Text:    p,
			Ordinal: i,
		})
	}
	return Result{Elements: elements}, nil
}

// parseMarkdown splits on ATX headings (# .. ######) into heading and
// paragraph Elements, preserving heading level 1-6.
func parseMarkdown(in Input) (Result, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(in.Data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var elements []metadata.Element
	var para strings.Builder
	ordinal := 0

	flush := func() {
		text := strings.TrimSpace(para.String())
		if text != "" {
			elements = append(elements, metadata.Element{
				Kind:    metadata.ElementParagraph,
				Text:    text,
				Ordinal: ordinal,
			})
			ordinal++
		}
		para.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			elements = append(elements, metadata.Element{
				Kind:    metadata.ElementHeading,
				Level:   len(m[1]),
				Text:    strings.TrimSpace(m[2]),
				Ordinal: ordinal,
			})
			ordinal++
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if para.Len() > 0 {
			para.WriteString("\n")
		}
		para.WriteString(line)
	}
	flush()

	if len(elements) == 0 {
		return Result{Warnings: []string{"document produced no text content"}}, nil
	}
	return Result{Elements: elements}, scanner.Err()
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
