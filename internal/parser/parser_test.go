package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/metadata"
)

func TestClassifyPrefersMimeTypeOverFilename(t *testing.T) {
	require.Equal(t, kindPDF, classify("application/pdf", "report.txt"))
	require.Equal(t, kindPlainText, classify("", "notes.txt"))
	require.Equal(t, kindXLSX, classify("", "data.xlsx"))
	require.Equal(t, kindUnknown, classify("application/zip", "archive.zip"))
}

func TestParseUnsupportedMimeType(t *testing.T) {
	p := New()
	_, err := p.Parse(Input{MimeType: "application/zip", Filename: "a.zip"})
	require.ErrorIs(t, err, ErrUnsupportedMimeType)
}

func TestParsePlainTextSplitsOnBlankLines(t *testing.T) {
	p := New()
	result, err := p.Parse(Input{
		MimeType: "text/plain",
		Data:     []byte("first paragraph\nstill first\n\nsecond paragraph"),
	})
	require.NoError(t, err)
	require.Len(t, result.Elements, 2)
	require.Equal(t, metadata.ElementParagraph, result.Elements[0].Kind)
	require.Equal(t, "first paragraph\nstill first", result.Elements[0].Text)
	require.Equal(t, "second paragraph", result.Elements[1].Text)
}

func TestParseMarkdownDetectsHeadingLevels(t *testing.T) {
	p := New()
	result, err := p.Parse(Input{
		MimeType: "text/markdown",
		Data:     []byte("# Title\n\nIntro text.\n\n## Section\n\nBody text."),
	})
	require.NoError(t, err)
	require.Len(t, result.Elements, 4)

	require.Equal(t, metadata.ElementHeading, result.Elements[0].Kind)
	require.Equal(t, 1, result.Elements[0].Level)
	require.Equal(t, "Title", result.Elements[0].Text)

	require.Equal(t, metadata.ElementParagraph, result.Elements[1].Kind)

	require.Equal(t, metadata.ElementHeading, result.Elements[2].Kind)
	require.Equal(t, 2, result.Elements[2].Level)
	require.Equal(t, "Section", result.Elements[2].Text)
}

func TestParseDelimitedEmitsOneUnsplitOversizeTable(t *testing.T) {
	csv := "name,age\n"
	for i := 0; i < 5; i++ {
		csv += "row,1\n"
	}
	result, err := parseDelimited(Input{Filename: "data.csv", Data: []byte(csv)}, 2)
	require.NoError(t, err)
	require.Len(t, result.Elements, 1)
	require.Equal(t, metadata.ElementTable, result.Elements[0].Kind)
	require.True(t, result.Elements[0].Oversize)
	require.Equal(t, "5", result.Elements[0].Metadata["row_count"])
}

func TestParseDelimitedUnderThresholdIsNotOversize(t *testing.T) {
	result, err := parseDelimited(Input{Filename: "data.csv", Data: []byte("name,age\nrow,1\n")}, 200)
	require.NoError(t, err)
	require.Len(t, result.Elements, 1)
	require.False(t, result.Elements[0].Oversize)
}

func TestParseDelimitedEmptyDataRowsStillEmitsHeaderTable(t *testing.T) {
	result, err := parseDelimited(Input{Filename: "data.csv", Data: []byte("a,b,c\n")}, 200)
	require.NoError(t, err)
	require.Len(t, result.Elements, 1)
	require.Equal(t, "0", result.Elements[0].Metadata["row_count"])
}

func TestParseDelimitedMalformedReturnsTerminalError(t *testing.T) {
	_, err := parseDelimited(Input{Filename: "data.csv", Data: []byte("\"unterminated")}, 200)
	require.ErrorIs(t, err, ErrParseFailed)
}
