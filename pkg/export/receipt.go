package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the fields rendered on a session receipt document.
type Receipt struct {
	SessionID      string
	ConsultantName string
	ClientName     string
	StartTime      string
	EndTime        string
	Status         string
	ContactChannel string
	Notes          string
}

// ReceiptExporter renders a completed session into a one-page PDF.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render creates the receipt PDF.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	if r.SessionID == "" {
		return nil, fmt.Errorf("receipt requires a session id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "SESSION RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Session", r.SessionID},
		{"Consultant", r.ConsultantName},
		{"Client", r.ClientName},
		{"Start", r.StartTime},
		{"End", r.EndTime},
		{"Status", r.Status},
	}
	if r.ContactChannel != "" {
		rows = append(rows, [2]string{"Channel", r.ContactChannel})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(135, 8, row[1], "1", 1, "", false, 0, "")
	}

	if r.Notes != "" {
		pdf.Ln(5)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 8, "Notes", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 6, r.Notes, "1", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
