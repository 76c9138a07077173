package parser

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"ragcore/internal/metadata"
)

// parseDelimited handles CSV and TSV, producing a single table Element
// holding the header row plus every data row, flagged Oversize when the
// data row count exceeds maxTableRows. Splitting an oversize table into
// row-group chunks is the Chunker's job, not the Parser's.
func parseDelimited(in Input, maxTableRows int) (Result, error) {
	delim := ','
	lower := strings.ToLower(in.Filename)
	if strings.HasSuffix(lower, ".tsv") || strings.Contains(strings.ToLower(in.MimeType), "tsv") {
		delim = '\t'
	}

	reader := csv.NewReader(strings.NewReader(string(in.Data)))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if len(rows) == 0 {
		return Result{Warnings: []string{"delimited file has no rows"}}, nil
	}

	header := rows[0]
	dataRows := rows[1:]

	elements := []metadata.Element{tableElement(header, dataRows, 0, maxTableRows)}
	return Result{Elements: elements}, nil
}

func tableElement(header []string, rows [][]string, ordinal, maxTableRows int) metadata.Element {
	var sb strings.Builder
	sb.WriteString("| ")
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString(" |\n")
	for _, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
	}
	return metadata.Element{
		Kind:     metadata.ElementTable,
		Text:     sb.String(),
		Ordinal:  ordinal,
		Oversize: len(rows) > maxTableRows,
		Metadata: map[string]string{
			"row_count": strconv.Itoa(len(rows)),
		},
	}
}
