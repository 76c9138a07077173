package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ragcore/internal/metadata"
)

// parseXLSX emits one heading Element per sheet followed by a single
// pipe-table Element holding every row of that sheet, flagged Oversize when
// the row count exceeds maxTableRows. Splitting an oversize table into
// row-group chunks is the Chunker's job, not the Parser's.
func parseXLSX(in Input, maxTableRows int) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(in.Data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fmt.Errorf("%w: workbook has no sheets", ErrParseFailed)
	}

	var elements []metadata.Element
	var warnings []string
	ordinal := 0

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("sheet %q: %v", sheet, err))
			continue
		}
		if len(rows) == 0 {
			continue
		}

		elements = append(elements, metadata.Element{
			Kind:    metadata.ElementHeading,
			Level:   1,
			Text:    sheet,
			Ordinal: ordinal,
		})
		ordinal++

		var sb strings.Builder
		for _, row := range rows {
			sb.WriteString("| ")
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString(" |\n")
		}

		elements = append(elements, metadata.Element{
			Kind:     metadata.ElementTable,
			Text:     sb.String(),
			Ordinal:  ordinal,
			Oversize: len(rows) > maxTableRows,
			Metadata: map[string]string{
				"sheet_name": sheet,
				"row_count":  strconv.Itoa(len(rows)),
			},
		})
		ordinal++
	}

	if len(elements) == 0 {
		return Result{Warnings: append(warnings, "no sheet data found")}, nil
	}
	return Result{Elements: elements, Warnings: warnings}, nil
}
