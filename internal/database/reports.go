package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

func (db *DB) PopularVenues(ctx context.Context, limit int) ([]models.PopularVenue, error) {
	query := `SELECT f.id, f.name, f.address, f.city, f.avg_rating, f.review_count, f.created_at,
				(SELECT MIN(c.price_per_hour) FROM courts c WHERE c.facility_id = f.id AND c.is_active = 1)
			FROM facilities f
			WHERE f.status = 'APPROVED'
			ORDER BY f.avg_rating DESC, f.created_at DESC, f.id DESC
			LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular venues: %w", err)
	}
	defer rows.Close()

	venues := []models.PopularVenue{}
	for rows.Next() {
		var (
			v     models.PopularVenue
			price sql.NullInt64
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.AvgRating, &v.ReviewCount, &v.CreatedAt, &price); err != nil {
			return nil, fmt.Errorf("failed to scan popular venue: %w", err)
		}
		if price.Valid {
			p := price.Int64
			v.StartingPrice = &p
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate popular venues: %w", err)
	}
	return venues, nil
}

func (db *DB) PopularSports(ctx context.Context, limit int) ([]models.SportCount, error) {
	query := `SELECT c.sport_type, COUNT(*) AS bookings
			FROM bookings b JOIN courts c ON c.id = b.court_id
			WHERE b.status = 'CONFIRMED'
			GROUP BY c.sport_type
			ORDER BY bookings DESC, c.sport_type ASC
			LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular sports: %w", err)
	}
	defer rows.Close()

	sports := []models.SportCount{}
	for rows.Next() {
		var s models.SportCount
		if err := rows.Scan(&s.Sport, &s.Bookings); err != nil {
			return nil, fmt.Errorf("failed to scan popular sport: %w", err)
		}
		sports = append(sports, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate popular sports: %w", err)
	}
	return sports, nil
}

// RevenueStats sums paid bookings starting in [from, to). ownerID 0 covers every facility.
func (db *DB) RevenueStats(ctx context.Context, ownerID int64, from, to time.Time) (*models.RevenueStats, error) {
	scope := ``
	args := []interface{}{from.Unix(), to.Unix()}
	if ownerID != 0 {
		scope = ` AND f.owner_id = ?`
		args = append(args, ownerID)
	}

	stats := &models.RevenueStats{From: from, To: to, ByFacility: []models.FacilityRevenue{}}
	totals := `SELECT
				COALESCE(SUM(CASE WHEN b.status IN ('CONFIRMED', 'COMPLETED') THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN b.status IN ('CONFIRMED', 'COMPLETED') THEN b.total_price ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN b.status = 'CANCELLED' THEN 1 ELSE 0 END), 0)
			FROM bookings b JOIN facilities f ON f.id = b.facility_id
			WHERE b.start_ts >= ? AND b.start_ts < ?` + scope
	if err := db.QueryRowContext(ctx, totals, args...).Scan(&stats.Bookings, &stats.Revenue, &stats.Cancelled); err != nil {
		return nil, fmt.Errorf("failed to query revenue totals: %w", err)
	}

	perFacility := `SELECT f.id, f.name, COUNT(*), COALESCE(SUM(b.total_price), 0)
			FROM bookings b JOIN facilities f ON f.id = b.facility_id
			WHERE b.status IN ('CONFIRMED', 'COMPLETED') AND b.start_ts >= ? AND b.start_ts < ?` + scope + `
			GROUP BY f.id, f.name
			ORDER BY 4 DESC, f.id`
	rows, err := db.QueryContext(ctx, perFacility, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facility revenue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fr models.FacilityRevenue
		if err := rows.Scan(&fr.FacilityID, &fr.FacilityName, &fr.Bookings, &fr.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan facility revenue: %w", err)
		}
		stats.ByFacility = append(stats.ByFacility, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate facility revenue: %w", err)
	}
	return stats, nil
}

const reportColumns = `b.id, b.status, b.start_ts, b.end_ts, b.total_price, b.currency, b.txn_reference,
	u.full_name, u.email, f.name, c.name, c.sport_type, b.created_at`

const reportJoins = ` FROM bookings b
	JOIN users u ON u.id = b.user_id
	JOIN courts c ON c.id = b.court_id
	JOIN facilities f ON f.id = b.facility_id`

func scanReportRow(row rowScanner) (*models.BookingReportRow, error) {
	var (
		r          models.BookingReportRow
		start, end int64
	)
	err := row.Scan(&r.BookingID, &r.Status, &start, &end, &r.TotalPrice, &r.Currency, &r.TxnReference,
		&r.UserName, &r.UserEmail, &r.FacilityName, &r.CourtName, &r.SportType, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Start = fromUnix(start)
	r.End = fromUnix(end)
	return &r, nil
}

func (db *DB) BookingReportRows(ctx context.Context, ownerID int64, from, to time.Time) ([]models.BookingReportRow, error) {
	query := `SELECT ` + reportColumns + reportJoins + ` WHERE b.start_ts >= ? AND b.start_ts < ?`
	args := []interface{}{from.Unix(), to.Unix()}
	if ownerID != 0 {
		query += ` AND f.owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY b.start_ts, b.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking report: %w", err)
	}
	defer rows.Close()

	var out []models.BookingReportRow
	for rows.Next() {
		r, err := scanReportRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking report row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking report: %w", err)
	}
	return out, nil
}

func (db *DB) GetBookingReportRow(ctx context.Context, bookingID int64) (*models.BookingReportRow, error) {
	r, err := scanReportRow(db.QueryRowContext(ctx, `SELECT `+reportColumns+reportJoins+` WHERE b.id = ?`, bookingID))
	if err != nil {
		return nil, notFound(err, "get booking report row")
	}
	return r, nil
}
