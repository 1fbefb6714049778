package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"rosterparse/internal"
)

// ExportRowsToXLSX writes the review spreadsheet: one row per transaction,
// one column group per roster field (value, confidence, status) so reviewers
// can sort by the weakest field without opening the source email.
func ExportRowsToXLSX(rows []internal.ExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"email_id", "section_index", "fields_found", "fields_valid", "partial"}
	for _, field := range internal.FieldOrder {
		headers = append(headers, string(field), string(field)+" (conf)", string(field)+" (status)")
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.EmailID)
		set(2, row.SectionIndex)
		set(3, row.FieldsFound)
		set(4, row.FieldsValid)
		set(5, row.Partial)

		col := 6
		for _, field := range internal.FieldOrder {
			set(col, row.Values[field])
			if row.Values[field] != "" {
				set(col+1, row.Confidences[field])
				set(col+2, string(row.Statuses[field]))
			}
			col += 3
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportEmail writes one email's transactions to out/roster_<emailID>.xlsx
// and returns the path.
func (s *ProcessingService) ExportEmail(emailID int) (string, error) {
	rows, err := s.db.GetExportRows(emailID)
	if err != nil {
		return "", err
	}
	outputPath := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("roster_%d.xlsx", emailID))
	if err := ExportRowsToXLSX(rows, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
