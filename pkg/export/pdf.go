package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/phpdave11/gofpdf"
)

const (
	pdfPageWidth   = 277.0 // A4 landscape minus margins, mm
	pdfRowHeight   = 6.0
	pdfMinColWidth = 18.0
	pdfMaxCellLen  = 40
)

// PDFWriter writes a printable landscape table.
type PDFWriter struct {
	// Title printed above the table.
	Title string
}

// Format returns FormatPDF.
func (p *PDFWriter) Format() Format { return FormatPDF }

// ContentType returns the PDF MIME type.
func (p *PDFWriter) ContentType() string { return "application/pdf" }

// Write renders the table and writes the document to w. Tables wider than a
// page are printed in column bands, one after the other. Long cells are
// truncated; the spreadsheet export is the lossless format.
func (p *PDFWriter) Write(w io.Writer, rows []Row, defs []columns.Def) error {
	sheet, err := Prepare(rows, defs)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(p.Title, true)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	if p.Title != "" {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 10, tr(p.Title))
		pdf.Ln(12)
	}

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, band := range columnBands(len(sheet.Header)) {
		if i > 0 {
			pdf.AddPage()
		}
		width := pdfPageWidth / float64(band.end-band.start)

		header := func() {
			pdf.SetFont("Helvetica", "B", 8)
			for _, h := range sheet.Header[band.start:band.end] {
				pdf.CellFormat(width, pdfRowHeight, tr(truncate(h)), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
			pdf.SetFont("Helvetica", "", 7)
		}

		header()
		for _, values := range sheet.Rows {
			if pdf.GetY()+pdfRowHeight > pageHeight-bottom {
				pdf.AddPage()
				header()
			}
			for _, v := range values[band.start:band.end] {
				pdf.CellFormat(width, pdfRowHeight, tr(truncate(Text(v))), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type band struct{ start, end int }

// columnBands splits n columns into the fewest page-wide bands of at least
// pdfMinColWidth per column, balanced in size.
func columnBands(n int) []band {
	if n <= 0 {
		return nil
	}
	pageWidth := pdfPageWidth
	perPage := int(pageWidth / pdfMinColWidth)
	count := (n + perPage - 1) / perPage
	size := (n + count - 1) / count

	bands := make([]band, 0, count)
	for start := 0; start < n; start += size {
		bands = append(bands, band{start: start, end: min(start+size, n)})
	}
	return bands
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > pdfMaxCellLen {
		return string(runes[:pdfMaxCellLen-1]) + "…"
	}
	return s
}
