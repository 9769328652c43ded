// Package google mirrors booking rows into a Google Sheets ledger.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"courtbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	dateTimeLayout = "2006-01-02 15:04"
	lastColumn     = "N"
	statusColumn   = "B"
	syncedColumn   = "N"
)

var ErrRowNotFound = errors.New("booking row not found")

var ledgerHeader = []interface{}{
	"Booking ID", "Status", "Start", "End", "Total", "Currency", "Txn Reference",
	"Customer", "Email", "Facility", "Court", "Sport", "Created At", "Synced At",
}

// SheetsLedger keeps one row per booking, keyed by the id in column A.
type SheetsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	location      *time.Location
	now           func() time.Time

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewSheetsLedger authenticates with a service account credentials file.
func NewSheetsLedger(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*SheetsLedger, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsLedger(srv, spreadsheetID, sheetName, loc), nil
}

func newSheetsLedger(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *SheetsLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsLedger{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		location:      loc,
		now:           time.Now,
		rowCache:      make(map[int64]int),
	}
}

func (s *SheetsLedger) rangeOf(a1 string) string {
	return s.sheetName + "!" + a1
}

// EnsureHeader writes the column titles into the first row.
func (s *SheetsLedger) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A1:"+lastColumn+"1"), &sheets.ValueRange{
		Values: [][]interface{}{ledgerHeader},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	return nil
}

// WarmUpCache populates the row index cache by reading the id column.
func (s *SheetsLedger) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read ledger ids: %w", err)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellInt(row[0]); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertBooking rewrites the booking's row, appending it when the ledger has none.
func (s *SheetsLedger) UpsertBooking(ctx context.Context, row *models.BookingReportRow) error {
	if row == nil {
		return errors.New("booking row is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, row.BookingID)
	if errors.Is(err, ErrRowNotFound) {
		return s.appendBooking(ctx, row)
	}
	if err != nil {
		return err
	}

	a1 := fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(a1), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(row)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update ledger row %d: %w", rowIdx, err)
	}
	return nil
}

func (s *SheetsLedger) appendBooking(ctx context.Context, row *models.BookingReportRow) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(row)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	if resp.Updates != nil {
		if idx, ok := firstRowOf(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(row.BookingID, idx)
		}
	}
	return nil
}

// UpdateBookingStatus touches only the status and synced-at cells.
func (s *SheetsLedger) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{Range: s.rangeOf(fmt.Sprintf("%s%d", statusColumn, rowIdx)), Values: [][]interface{}{{status}}},
			{Range: s.rangeOf(fmt.Sprintf("%s%d", syncedColumn, rowIdx)), Values: [][]interface{}{{s.now().In(s.location).Format(dateTimeLayout)}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update ledger status: %w", err)
	}
	return nil
}

// DeleteBookingRow clears the booking's row.
func (s *SheetsLedger) DeleteBookingRow(ctx context.Context, bookingID int64) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	a1 := fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rangeOf(a1), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear ledger row: %w", err)
	}
	s.deleteCachedRow(bookingID)
	return nil
}

// FindBookingRow returns the 1-based row of bookingID, scanning column A on a cache miss.
func (s *SheetsLedger) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID <= 0 {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger ids: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && cellInt(row[0]) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

func (s *SheetsLedger) rowValues(r *models.BookingReportRow) []interface{} {
	return []interface{}{
		r.BookingID,
		string(r.Status),
		r.Start.In(s.location).Format(dateTimeLayout),
		r.End.In(s.location).Format(dateTimeLayout),
		float64(r.TotalPrice) / 100,
		r.Currency,
		r.TxnReference,
		r.UserName,
		r.UserEmail,
		r.FacilityName,
		r.CourtName,
		r.SportType,
		r.CreatedAt.In(s.location).Format(dateTimeLayout),
		s.now().In(s.location).Format(dateTimeLayout),
	}
}

func (s *SheetsLedger) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsLedger) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsLedger) deleteCachedRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

func cellInt(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		id, _ := strconv.ParseInt(t, 10, 64)
		return id
	}
	return 0
}

var a1RowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRowOf extracts the starting row from a range such as "Bookings!A10:N10".
func firstRowOf(a1 string) (int, bool) {
	m := a1RowPattern.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	return row, err == nil
}
