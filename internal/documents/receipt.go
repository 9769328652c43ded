package documents

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"

	"github.com/phpdave11/gofpdf"
)

// Receipt renders a one-page PDF receipt for a paid booking.
func Receipt(r *models.BookingReportRow, issuedAt time.Time, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Receipt %d", r.BookingID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOOKING RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Receipt no : CB-%06d", r.BookingID))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Issued     : "+issuedAt.In(loc).Format(cellLayout))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Billed to:")
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, orDash(r.UserName))
	pdf.Ln(6)
	pdf.Cell(0, 6, orDash(r.UserEmail))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Details:")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		"Venue       : " + orDash(r.FacilityName),
		fmt.Sprintf("Court       : %s (%s)", orDash(r.CourtName), orDash(r.SportType)),
		"Date        : " + r.Start.In(loc).Format("Mon, 02 Jan 2006"),
		fmt.Sprintf("Time        : %s - %s", r.Start.In(loc).Format("15:04"), r.End.In(loc).Format("15:04")),
		"Status      : " + string(r.Status),
		"Transaction : " + orDash(r.TxnReference),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %s %s", models.FormatMinor(r.TotalPrice), strings.ToUpper(r.Currency)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Please show this receipt at the venue reception. Cancellations follow the venue policy.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
