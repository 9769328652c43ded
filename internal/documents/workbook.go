// Package documents renders booking exports and receipts.
package documents

import (
	"fmt"
	"time"

	"courtbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	cellLayout    = "2006-01-02 15:04"
)

var workbookColumns = []struct {
	title string
	width float64
}{
	{"Booking ID", 12},
	{"Status", 12},
	{"Facility", 28},
	{"Court", 18},
	{"Sport", 14},
	{"Start", 18},
	{"End", 18},
	{"Customer", 24},
	{"Email", 28},
	{"Amount", 12},
	{"Currency", 10},
	{"Transaction", 24},
	{"Created", 18},
}

// BookingsWorkbook builds an xlsx file with one row per booking between from and to.
func BookingsWorkbook(rows []models.BookingReportRow, from, to time.Time, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(workbookColumns))
	title := fmt.Sprintf("Bookings %s - %s", from.In(loc).Format("02.01.2006"), to.In(loc).Format("02.01.2006"))
	_ = f.SetCellValue(bookingsSheet, "A1", title)
	_ = f.MergeCell(bookingsSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, col := range workbookColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		cell := name + "2"
		_ = f.SetCellValue(bookingsSheet, cell, col.title)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, headerStyle)
		_ = f.SetColWidth(bookingsSheet, name, name, col.width)
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006"},
	})
	for i, r := range rows {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			r.BookingID,
			string(r.Status),
			r.FacilityName,
			r.CourtName,
			r.SportType,
			r.Start.In(loc).Format(cellLayout),
			r.End.In(loc).Format(cellLayout),
			r.UserName,
			r.UserEmail,
			float64(r.TotalPrice) / 100,
			r.Currency,
			r.TxnReference,
			r.CreatedAt.In(loc).Format(cellLayout),
		}
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		if r.Status == models.BookingCancelled || r.Status == models.BookingFailed {
			end, _ := excelize.CoordinatesToCellName(len(workbookColumns), row)
			_ = f.SetCellStyle(bookingsSheet, cell, end, cancelledStyle)
		}
	}
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 2, TopLeftCell: "A3", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
