package documents

import (
	"bytes"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRow(id int64, status models.BookingStatus) models.BookingReportRow {
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	return models.BookingReportRow{
		BookingID:    id,
		Status:       status,
		Start:        start,
		End:          start.Add(time.Hour),
		TotalPrice:   50000,
		Currency:     "THB",
		TxnReference: "chrg_test_1",
		UserName:     "Ann Player",
		UserEmail:    "ann@example.com",
		FacilityName: "Riverside Arena",
		CourtName:    "Court 1",
		SportType:    "badminton",
		CreatedAt:    start.Add(-24 * time.Hour),
	}
}

func TestBookingsWorkbook(t *testing.T) {
	rows := []models.BookingReportRow{
		sampleRow(1, models.BookingConfirmed),
		sampleRow(2, models.BookingCancelled),
	}
	from := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	data, err := BookingsWorkbook(rows, from, from.AddDate(0, 1, 0), time.UTC)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(bookingsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Bookings 01.03.2030 - 01.04.2030", title)

	header, err := f.GetCellValue(bookingsSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "Facility", header)

	sheetRows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, sheetRows, 4)
	assert.Equal(t, "1", sheetRows[2][0])
	assert.Equal(t, "CONFIRMED", sheetRows[2][1])
	assert.Equal(t, "2030-03-04 10:00", sheetRows[2][5])
	assert.Equal(t, "500", sheetRows[2][9])
	assert.Equal(t, "CANCELLED", sheetRows[3][1])
}

func TestBookingsWorkbookEmpty(t *testing.T) {
	data, err := BookingsWorkbook(nil, time.Now(), time.Now(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheetRows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	assert.Len(t, sheetRows, 2)
}

func TestReceipt(t *testing.T) {
	row := sampleRow(42, models.BookingConfirmed)
	data, err := Receipt(&row, time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash("  "))
	assert.Equal(t, "x", orDash("x"))
}
