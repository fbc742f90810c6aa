package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
)

var pdfColumns = []struct {
	title string
	width float64
}{
	{"File", 70},
	{"Type", 20},
	{"Status", 30},
	{"Conf.", 16},
	{"Method", 26},
	{"Source", 24},
	{"Registry", 24},
	{"Message", 67},
}

// WritePDF renders a landscape summary table. Keyword evidence is listed
// under each row.
func WritePDF(w io.Writer, rows []Row) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Credential verification report", false)
	pdf.SetAuthor("credential-verifier", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Credential verification report")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s, %d document(s)", time.Now().UTC().Format(time.RFC3339), len(rows)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(189, 215, 238)
	for _, c := range pdfColumns {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 8)
	for _, r := range rows {
		vals := columns(r)
		cells := []string{
			fmt.Sprint(vals[0]),
			fmt.Sprint(vals[1]),
			fmt.Sprint(vals[2]),
			fmt.Sprintf("%.2f", r.Result.Confidence),
			fmt.Sprint(vals[4]),
			fmt.Sprint(vals[7]),
			fmt.Sprint(vals[9]),
			fmt.Sprint(vals[10]),
		}
		for i, c := range pdfColumns {
			pdf.CellFormat(c.width, 6, tr(truncateToWidth(pdf, cells[i], c.width-2)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		if len(r.Result.KeywordMatches) > 0 {
			pdf.SetFont("Helvetica", "I", 7)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("keywords: %s", vals[5])), "", "L", false)
			pdf.SetFont("Helvetica", "", 8)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func truncateToWidth(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
