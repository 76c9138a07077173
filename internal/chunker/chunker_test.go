package chunker

import (
	"strconv"
	"strings"
	"testing"

	"ragcore/internal/metadata"
)

func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func paragraph(ordinal int, n int) metadata.Element {
	return metadata.Element{Kind: metadata.ElementParagraph, Text: words(n), Ordinal: ordinal}
}

func heading(ordinal, level int, text string) metadata.Element {
	return metadata.Element{Kind: metadata.ElementHeading, Level: level, Text: text, Ordinal: ordinal}
}

func TestChunkRespectsMaxTokens(t *testing.T) {
	c := New(Config{MinTokens: 10, MaxTokens: 50, OverlapTokens: 0, HeaderBreakLevel: 2})
	elements := []metadata.Element{paragraph(0, 200)}
	chunks := c.Chunk("doc1", elements)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}
	for i, ch := range chunks {
		if i == len(chunks)-1 {
			continue
		}
		if ch.TokenCount > 50 {
			t.Fatalf("chunk %d exceeds max tokens: %d", i, ch.TokenCount)
		}
	}
}

func TestChunkHeadingForcesBoundaryAtOrBelowBreakLevel(t *testing.T) {
	c := New(Config{MinTokens: 1, MaxTokens: 10000, OverlapTokens: 0, HeaderBreakLevel: 2})
	elements := []metadata.Element{
		heading(0, 1, "Intro"),
		paragraph(1, 5),
		heading(2, 2, "Background"),
		paragraph(3, 5),
	}
	chunks := c.Chunk("doc1", elements)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks from heading break, got %d", len(chunks))
	}
	if len(chunks[0].HeaderPath) != 1 || chunks[0].HeaderPath[0] != "Intro" {
		t.Fatalf("unexpected header path for chunk 0: %v", chunks[0].HeaderPath)
	}
	if len(chunks[1].HeaderPath) != 2 || chunks[1].HeaderPath[1] != "Background" {
		t.Fatalf("unexpected header path for chunk 1: %v", chunks[1].HeaderPath)
	}
}

func TestChunkHeadingBelowBreakLevelDoesNotForceBoundary(t *testing.T) {
	c := New(Config{MinTokens: 1, MaxTokens: 10000, OverlapTokens: 0, HeaderBreakLevel: 2})
	elements := []metadata.Element{
		heading(0, 1, "Intro"),
		paragraph(1, 5),
		heading(2, 4, "Minor aside"),
		paragraph(3, 5),
	}
	chunks := c.Chunk("doc1", elements)
	if len(chunks) != 1 {
		t.Fatalf("expected a heading below break level to stay in one chunk, got %d", len(chunks))
	}
}

func TestChunkOverlapCarriesTailIntoNextChunk(t *testing.T) {
	c := New(Config{MinTokens: 1, MaxTokens: 30, OverlapTokens: 5, HeaderBreakLevel: 2})
	elements := []metadata.Element{paragraph(0, 100)}
	chunks := c.Chunk("doc1", elements)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks to exercise overlap")
	}
	tail := tailTokens(chunks[0].Text, 5)
	if tail != "" && !strings.HasPrefix(chunks[1].Text, tail) {
		t.Fatalf("expected chunk 1 to start with chunk 0's overlap tail %q, got %q", tail, chunks[1].Text[:min(len(chunks[1].Text), 40)])
	}
}

func TestChunkTablePartitionsRowsAndRepeatsHeader(t *testing.T) {
	var rows []string
	header := "| name | age |"
	rows = append(rows, header)
	for i := 0; i < 130; i++ {
		rows = append(rows, "| row"+strconv.Itoa(i)+" | 1 |")
	}
	tableEl := metadata.Element{Kind: metadata.ElementTable, Text: strings.Join(rows, "\n"), Ordinal: 0}

	c := New(Config{MinTokens: 1, MaxTokens: 10000, MaxTableRows: 60, MinTableRows: 20, HeaderBreakLevel: 2})
	chunks := c.Chunk("doc1", []metadata.Element{tableEl})

	if len(chunks) != 3 { // 130 rows, 20..60 per group = 3 groups (60, 50, 20)
		t.Fatalf("expected 3 table chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if !ch.IsTable {
			t.Fatalf("expected IsTable=true")
		}
		if !strings.HasPrefix(ch.Text, header) {
			t.Fatalf("expected header repeated at top of every group, got %q", ch.Text[:min(len(ch.Text), 30)])
		}
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	elements := []metadata.Element{
		heading(0, 1, "Intro"),
		paragraph(1, 40),
		paragraph(2, 40),
	}
	c := New(DefaultConfig())
	a := c.Chunk("doc1", elements)
	b := c.Chunk("doc1", elements)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text || a[i].TokenCount != b[i].TokenCount {
			t.Fatalf("non-deterministic chunk %d", i)
		}
	}
}
