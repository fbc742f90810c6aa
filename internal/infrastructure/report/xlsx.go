package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

const sheetName = "Verifications"

var statusFill = map[domain.VerificationStatus]string{
	domain.StatusVerified:      "C6EFCE",
	domain.StatusLikelyValid:   "DDEBF7",
	domain.StatusPendingReview: "FFEB9C",
	domain.StatusSuspicious:    "FFC7CE",
	domain.StatusError:         "D9D9D9",
}

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"BDD7EE"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	statusStyles := make(map[domain.VerificationStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}})
		if err != nil {
			return fmt.Errorf("create status style: %w", err)
		}
		statusStyles[status] = id
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := columns(r)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		if style, ok := statusStyles[r.Result.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(3, i+2)
			if err := f.SetCellStyle(sheetName, statusCell, statusCell, style); err != nil {
				return fmt.Errorf("style row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "F", "F", 48); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
