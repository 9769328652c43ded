package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// blockingQuery yields every range that excludes new bookings on a court: confirmed bookings,
// pending bookings whose payment hold is still running, and owner blocks.
// Args: court, end, start, now, court, end, start.
const blockingQuery = `
	SELECT 'booking' AS kind, id, start_ts, end_ts, status, '' AS reason FROM bookings
	WHERE court_id = ? AND start_ts < ? AND end_ts > ?
		AND (status = 'CONFIRMED' OR (status = 'PENDING' AND hold_expires_at > ?))
	UNION ALL
	SELECT 'block' AS kind, id, start_ts, end_ts, '' AS status, reason FROM availability_slots
	WHERE court_id = ? AND is_blocked = 1 AND start_ts < ? AND end_ts > ?`

func blockingArgs(courtID int64, iv models.Interval, now time.Time) []interface{} {
	start, end := iv.Start.Unix(), iv.End.Unix()
	return []interface{}{courtID, end, start, now.Unix(), courtID, end, start}
}

func countBlocking(ctx context.Context, q queryer, courtID int64, iv models.Interval, now time.Time) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+blockingQuery+`)`, blockingArgs(courtID, iv, now)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to check overlap: %w", err)
	}
	return n, nil
}

const bookingColumns = `b.id, b.user_id, b.court_id, b.facility_id, b.start_ts, b.end_ts, b.total_price, b.currency,
	b.status, b.payment_method, b.payment_order_id, b.txn_reference, b.hold_expires_at, b.cancel_reason,
	b.cancelled_by, b.created_at, b.updated_at, b.version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		start, end, holds int64
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.CourtID, &b.FacilityID, &start, &end, &b.TotalPrice, &b.Currency,
		&b.Status, &b.PaymentMethod, &b.PaymentOrderID, &b.TxnReference, &holds, &b.CancelReason,
		&b.CancelledBy, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Start = fromUnix(start)
	b.End = fromUnix(end)
	if holds > 0 {
		b.HoldExpiresAt = fromUnix(holds)
	}
	return &b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "get booking")
	}
	return b, nil
}

// CreateBookingWithLock re-checks the court calendar and inserts the booking inside one
// immediate transaction, so concurrent writers for the same range produce a single row.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taken, err := countBlocking(ctx, tx, booking.CourtID, booking.Interval(), now)
	if err != nil {
		return err
	}
	if taken > 0 {
		return ErrSlotTaken
	}

	query := `INSERT INTO bookings (
				user_id, court_id, facility_id, start_ts, end_ts, total_price, currency, status,
				payment_method, hold_expires_at, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	var holds int64
	if !booking.HoldExpiresAt.IsZero() {
		holds = booking.HoldExpiresAt.Unix()
	}
	stamp := now.UTC()
	result, err := tx.ExecContext(ctx, query,
		booking.UserID,
		booking.CourtID,
		booking.FacilityID,
		booking.Start.Unix(),
		booking.End.Unix(),
		booking.TotalPrice,
		booking.Currency,
		booking.Status,
		booking.PaymentMethod,
		holds,
		stamp,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = stamp
	booking.UpdatedAt = stamp
	booking.Version = 1
	return nil
}

// confirmedOverlapQuery counts what a late confirmation would collide with: other confirmed
// bookings and owner blocks. Pending holds are not counted; they lose at their own confirmation.
// Args: court, end, start, booking id, court, end, start.
const confirmedOverlapQuery = `
	SELECT COUNT(*) FROM (
		SELECT id FROM bookings
		WHERE court_id = ? AND start_ts < ? AND end_ts > ? AND status = 'CONFIRMED' AND id <> ?
		UNION ALL
		SELECT id FROM availability_slots
		WHERE court_id = ? AND is_blocked = 1 AND start_ts < ? AND end_ts > ?
	)`

// TransitionBooking moves a booking from tr.From to tr.To only if it is still in tr.From.
// ErrConcurrentModification means another writer changed the status first. A move to
// CONFIRMED re-checks the court inside the same immediate transaction and fails with
// ErrSlotTaken when the range has been taken since the booking was created.
func (db *DB) TransitionBooking(ctx context.Context, id int64, tr models.BookingTransition, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		status     models.BookingStatus
		courtID    int64
		start, end int64
	)
	err = tx.QueryRowContext(ctx, `SELECT status, court_id, start_ts, end_ts FROM bookings WHERE id = ?`, id).
		Scan(&status, &courtID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if status != tr.From {
		return ErrConcurrentModification
	}

	if tr.To == models.BookingConfirmed {
		var taken int
		err := tx.QueryRowContext(ctx, confirmedOverlapQuery, courtID, end, start, id, courtID, end, start).Scan(&taken)
		if err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}
		if taken > 0 {
			return ErrSlotTaken
		}
	}

	query := `UPDATE bookings SET
				status = ?,
				txn_reference = CASE WHEN ? <> '' THEN ? ELSE txn_reference END,
				cancel_reason = CASE WHEN ? <> '' THEN ? ELSE cancel_reason END,
				cancelled_by = CASE WHEN ? <> 0 THEN ? ELSE cancelled_by END,
				version = version + 1,
				updated_at = ?
			WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, query,
		tr.To,
		tr.TxnReference, tr.TxnReference,
		tr.CancelReason, tr.CancelReason,
		tr.CancelledBy, tr.CancelledBy,
		now.UTC(),
		id,
		tr.From,
	)
	if err != nil {
		return fmt.Errorf("failed to transition booking: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return ErrConcurrentModification
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

func (db *DB) SetPaymentOrder(ctx context.Context, id int64, orderID string) error {
	query := `UPDATE bookings SET payment_order_id = ?, updated_at = ? WHERE id = ? AND status = 'PENDING'`
	return db.execAffectingOne(ctx, "set payment order", query, orderID, utcNow(), id)
}

// IsAvailable reports whether nothing blocking overlaps iv on the court. The single SELECT runs
// in SQLite's implicit read transaction; an explicit BeginTx would take the immediate write lock.
func (db *DB) IsAvailable(ctx context.Context, courtID int64, iv models.Interval, now time.Time) (bool, error) {
	taken, err := countBlocking(ctx, db.DB, courtID, iv, now)
	if err != nil {
		return false, err
	}
	return taken == 0, nil
}

func (db *DB) ListBusyIntervals(ctx context.Context, courtID int64, iv models.Interval, now time.Time) ([]models.BusyInterval, error) {
	rows, err := db.QueryContext(ctx, blockingQuery+` ORDER BY start_ts, kind`, blockingArgs(courtID, iv, now)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy intervals: %w", err)
	}
	defer rows.Close()

	busy := []models.BusyInterval{}
	for rows.Next() {
		var (
			bi         models.BusyInterval
			start, end int64
		)
		if err := rows.Scan(&bi.Kind, &bi.RefID, &start, &end, &bi.Status, &bi.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan busy interval: %w", err)
		}
		bi.Start = fromUnix(start)
		bi.End = fromUnix(end)
		busy = append(busy, bi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate busy intervals: %w", err)
	}
	return busy, nil
}

func (db *DB) ListUserBookings(ctx context.Context, userID int64, page models.Page) ([]*models.Booking, int64, error) {
	return db.listBookings(ctx, `FROM bookings b WHERE b.user_id = ?`, page, userID)
}

func (db *DB) ListOwnerBookings(ctx context.Context, ownerID int64, page models.Page) ([]*models.Booking, int64, error) {
	return db.listBookings(ctx,
		`FROM bookings b JOIN facilities f ON f.id = b.facility_id WHERE f.owner_id = ?`, page, ownerID)
}

func (db *DB) listBookings(ctx context.Context, from string, page models.Page, args ...interface{}) ([]*models.Booking, int64, error) {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + ` ` + from + ` ORDER BY b.start_ts DESC, b.id DESC LIMIT ? OFFSET ?`
	bookings, err := db.queryBookings(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// ListElapsedConfirmed returns confirmed bookings whose end has passed.
func (db *DB) ListElapsedConfirmed(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b
			WHERE b.status = 'CONFIRMED' AND b.end_ts <= ? ORDER BY b.end_ts LIMIT ?`
	return db.queryBookings(ctx, query, now.Unix(), limit)
}

// ListExpiredHolds returns pending bookings whose payment hold ran out.
func (db *DB) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b
			WHERE b.status = 'PENDING' AND b.hold_expires_at <= ? ORDER BY b.hold_expires_at LIMIT ?`
	return db.queryBookings(ctx, query, now.Unix(), limit)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}
