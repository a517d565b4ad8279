package export

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jung-kurt/gofpdf"
)

// SummaryLine is one label/value pair printed under a card's table.
type SummaryLine struct {
	Label string
	Value string
}

// Card is a single printed page: a heading, a table of rows and a summary block.
type Card struct {
	Title    string
	Subtitle []string
	Table    Table
	Summary  []SummaryLine
	Footer   string
}

const (
	coreFontFamily = "Arial"
	utf8FontFamily = "report"
	pageWidth      = 190.0
)

// PDFExporter renders cards into an A4 document, one page per card.
// Without a UTF-8 font only cp1252 text prints; other characters come out as "?".
type PDFExporter struct {
	utf8Font string
}

// PDFOption configures a PDFExporter.
type PDFOption func(*PDFExporter)

// WithUTF8Font embeds the TrueType font at path and uses it for every style, so labels outside
// cp1252 (localized semester names, student names) print. Complex script shaping is not applied.
func WithUTF8Font(path string) PDFOption {
	return func(e *PDFExporter) {
		e.utf8Font = path
	}
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(opts ...PDFOption) *PDFExporter {
	e := &PDFExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// fontSetup registers the configured font and returns its family and a text translator.
func (e *PDFExporter) fontSetup(pdf *gofpdf.Fpdf) (string, func(string) string, error) {
	if e.utf8Font == "" {
		return coreFontFamily, pdf.UnicodeTranslatorFromDescriptor(""), nil
	}
	data, err := os.ReadFile(e.utf8Font)
	if err != nil {
		return "", nil, err
	}
	for _, style := range []string{"", "B", "I"} {
		pdf.AddUTF8FontFromBytes(utf8FontFamily, style, data)
	}
	if err := pdf.Error(); err != nil {
		return "", nil, err
	}
	return utf8FontFamily, func(s string) string { return s }, nil
}

// Render creates the document. An empty card list still yields a single page
// carrying emptyNotice so downloads are never zero-length.
func (e *PDFExporter) Render(cards []Card, emptyNotice string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	family, tr, err := e.fontSetup(pdf)
	if err != nil {
		return nil, fmt.Errorf("load pdf font: %w", err)
	}

	if len(cards) == 0 {
		pdf.AddPage()
		pdf.SetFont(family, "I", 11)
		pdf.CellFormat(0, 10, tr(emptyNotice), "", 1, "C", false, 0, "")
	}

	for i, card := range cards {
		if len(card.Table.Headers) == 0 {
			return nil, fmt.Errorf("pdf card %d requires at least one header", i+1)
		}
		pdf.AddPage()
		writeHeading(pdf, family, tr, card)
		writeTable(pdf, family, tr, card.Table)
		writeSummary(pdf, family, tr, card.Summary)
		if card.Footer != "" {
			pdf.Ln(6)
			pdf.SetFont(family, "I", 8)
			pdf.CellFormat(0, 5, tr(card.Footer), "", 1, "R", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeading(pdf *gofpdf.Fpdf, family string, tr func(string) string, card Card) {
	if card.Title != "" {
		pdf.SetFont(family, "B", 14)
		pdf.CellFormat(0, 10, tr(card.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont(family, "", 10)
	for _, line := range card.Subtitle {
		pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func writeTable(pdf *gofpdf.Fpdf, family string, tr func(string) string, table Table) {
	colWidth := pageWidth / float64(len(table.Headers))

	pdf.SetFont(family, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, header := range table.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(family, "", 9)
	for _, row := range table.Rows {
		for i := range table.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func writeSummary(pdf *gofpdf.Fpdf, family string, tr func(string) string, lines []SummaryLine) {
	if len(lines) == 0 {
		return
	}
	pdf.Ln(6)
	for _, line := range lines {
		pdf.SetFont(family, "B", 10)
		pdf.CellFormat(70, 7, tr(line.Label), "", 0, "L", false, 0, "")
		pdf.SetFont(family, "", 10)
		pdf.CellFormat(0, 7, tr(line.Value), "", 1, "L", false, 0, "")
	}
}
