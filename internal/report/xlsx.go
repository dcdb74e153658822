// =============================================================================
// CTe/NFe Key Linker - XLSX Export
// =============================================================================
//
// Writes the LinkMap as a workbook for spreadsheet users.
//
// SHEETS:
//   links   : one row per (CTe, NFe) pair with the sorted origin markers
//   summary : distinct CTe and NFe key counts
//
// Rows follow the same order and filtering as the text report.
//
// =============================================================================

package report

import (
	"strings"

	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/types"
	"github.com/xuri/excelize/v2"
)

const (
	linksSheet   = "links"
	summarySheet = "summary"
)

// WriteXLSX writes the workbook to path.
func WriteXLSX(path string, links types.LinkMap) (Summary, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary, err := fillWorkbook(f, links)
	if err != nil {
		return Summary{}, &apperrors.FileWriteError{Path: path, Err: err}
	}

	if err := f.SaveAs(path); err != nil {
		return Summary{}, &apperrors.FileWriteError{Path: path, Err: err}
	}

	return summary, nil
}

func fillWorkbook(f *excelize.File, links types.LinkMap) (Summary, error) {
	if err := f.SetSheetName(f.GetSheetName(0), linksSheet); err != nil {
		return Summary{}, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return Summary{}, err
	}

	if err := f.SetSheetRow(linksSheet, "A1", &[]any{"CTe", "NFe", "Origins"}); err != nil {
		return Summary{}, err
	}
	if err := f.SetColWidth(linksSheet, "A", "B", 48); err != nil {
		return Summary{}, err
	}

	lines, summary := Lines(links)

	row := 2
	for _, line := range lines {
		for _, nfe := range line.Invoices {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return Summary{}, err
			}
			origins := strings.Join(links[line.Transport][nfe].Sorted(), ", ")
			if err := f.SetSheetRow(linksSheet, cell, &[]any{line.Transport, nfe, origins}); err != nil {
				return Summary{}, err
			}
			row++
		}
	}

	rows := [][]any{
		{"CTe keys", summary.TransportKeys},
		{"NFe keys", summary.InvoiceKeys},
	}
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return Summary{}, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return Summary{}, err
		}
	}

	return summary, nil
}
