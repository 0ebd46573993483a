package certificates

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// RenderData carries everything printed on a certificate.
type RenderData struct {
	ParticipantName  string
	EventTitle       string
	EventStarts      time.Time
	EventEnds        time.Time
	WorkloadHours    *int
	VerificationCode string
	IssuedAt         time.Time
}

// Renderer produces the certificate artifact bytes.
type Renderer interface {
	Render(data RenderData) ([]byte, error)
}

// PDFRenderer renders landscape A4 participation certificates.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render builds the certificate PDF.
func (r *PDFRenderer) Render(data RenderData) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(30, 30, 30)
	pdf.Rect(10, 10, w-20, h-20, "D")

	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetY(40)
	pdf.CellFormat(0, 14, "Certificate of Participation", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetY(70)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, data.ParticipantName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "participated in", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, data.EventTitle, "", 1, "C", false, 0, "")

	period := data.EventStarts.Format("Jan 2, 2006")
	if !sameDay(data.EventStarts, data.EventEnds) {
		period += " to " + data.EventEnds.Format("Jan 2, 2006")
	}
	line := "held on " + period
	if data.WorkloadHours != nil {
		line += fmt.Sprintf(", with a workload of %d hours", *data.WorkloadHours)
	}
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 10, line, "", 1, "C", false, 0, "")

	pdf.SetY(h - 40)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, "Issued "+data.IssuedAt.Format("Jan 2, 2006"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Verification code: "+data.VerificationCode, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
