// Package pdfexport renders tabular listings as PDF documents.
package pdfexport

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	portraitWidth = 190.0
	rowHeight     = 7.0
)

// Table describes one listing. Widths are column widths in millimetres and
// must line up with Headers.
type Table struct {
	Title       string
	Headers     []string
	Widths      []float64
	Rows        [][]string
	GeneratedAt time.Time
}

// Write renders t to w. Tables wider than a portrait A4 page are laid out in
// landscape. Cell text that does not fit its column is cut with an ellipsis.
func Write(w io.Writer, t Table) error {
	if len(t.Headers) != len(t.Widths) {
		return fmt.Errorf("pdf export: %d headers but %d widths", len(t.Headers), len(t.Widths))
	}
	orientation := "P"
	total := 0.0
	for _, width := range t.Widths {
		total += width
	}
	if total > portraitWidth {
		orientation = "L"
	}

	pdf := gofpdf.New(orientation, "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range t.Headers {
			pdf.CellFormat(t.Widths[i], rowHeight, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(t.Title))
	pdf.Ln(10)
	if !t.GeneratedAt.IsZero() {
		pdf.SetFont("Helvetica", "", 9)
		pdf.Cell(0, 6, fmt.Sprintf("Generated %s, %d rows", t.GeneratedAt.Format("2006-01-02 15:04"), len(t.Rows)))
		pdf.Ln(8)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range t.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom-12 {
			pdf.AddPage()
			header()
		}
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = fit(pdf, tr(row[i]), t.Widths[i]-2)
			}
			pdf.CellFormat(t.Widths[i], rowHeight, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf export: %w", err)
	}
	return nil
}

func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
