package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"courtbook/internal/models"
)

const facilityColumns = `f.id, f.owner_id, f.name, f.description, f.address, f.city, f.status,
	f.avg_rating, f.review_count, f.rejection_reason, f.created_at, f.updated_at`

func scanFacility(row rowScanner) (*models.Facility, error) {
	var f models.Facility
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.Name, &f.Description, &f.Address, &f.City, &f.Status,
		&f.AvgRating, &f.ReviewCount, &f.RejectionReason, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (db *DB) CreateFacility(ctx context.Context, facility *models.Facility) error {
	query := `INSERT INTO facilities (owner_id, name, description, address, city, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	if facility.Status == "" {
		facility.Status = models.FacilityDraft
	}
	result, err := db.ExecContext(ctx, query,
		facility.OwnerID,
		facility.Name,
		facility.Description,
		facility.Address,
		facility.City,
		facility.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create facility: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	facility.ID = id
	facility.CreatedAt = now
	facility.UpdatedAt = now
	return nil
}

func (db *DB) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	f, err := scanFacility(db.QueryRowContext(ctx, `SELECT `+facilityColumns+` FROM facilities f WHERE f.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "get facility")
	}
	return f, nil
}

// UpdateFacility writes the editable fields and status, provided the stored status is still
// expected. ErrConcurrentModification means another writer moved the facility first.
// Rating aggregates are owned by CreateReview.
func (db *DB) UpdateFacility(ctx context.Context, facility *models.Facility, expected models.FacilityStatus) error {
	query := `UPDATE facilities SET name = ?, description = ?, address = ?, city = ?, status = ?,
				rejection_reason = ?, updated_at = ? WHERE id = ? AND status = ?`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		facility.Name,
		facility.Description,
		facility.Address,
		facility.City,
		facility.Status,
		facility.RejectionReason,
		now,
		facility.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update facility: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM facilities WHERE id = ?`, facility.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check facility: %w", err)
		}
		return ErrConcurrentModification
	}
	facility.UpdatedAt = now
	return nil
}

func (db *DB) ListFacilities(ctx context.Context, filter models.FacilityFilter, page models.Page) ([]*models.Facility, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "f.status = ?")
		args = append(args, filter.Status)
	}
	if filter.OwnerID != 0 {
		where = append(where, "f.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		where = append(where, "f.city = ? COLLATE NOCASE")
		args = append(args, city)
	}
	if sport := strings.TrimSpace(filter.Sport); sport != "" {
		where = append(where, `EXISTS (SELECT 1 FROM courts c WHERE c.facility_id = f.id AND c.is_active = 1 AND c.sport_type = ? COLLATE NOCASE)`)
		args = append(args, sport)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facilities f`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count facilities: %w", err)
	}

	query := `SELECT ` + facilityColumns + ` FROM facilities f` + clause +
		` ORDER BY f.created_at DESC, f.id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []*models.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate facilities: %w", err)
	}
	return facilities, total, nil
}

const courtColumns = `id, facility_id, name, sport_type, price_per_hour, open_minute, close_minute, is_active, created_at, updated_at`

func scanCourt(row rowScanner) (*models.Court, error) {
	var c models.Court
	err := row.Scan(
		&c.ID, &c.FacilityID, &c.Name, &c.SportType, &c.PricePerHour,
		&c.OpenMinute, &c.CloseMinute, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateCourt(ctx context.Context, court *models.Court) error {
	query := `INSERT INTO courts (facility_id, name, sport_type, price_per_hour, open_minute, close_minute, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		court.FacilityID,
		court.Name,
		court.SportType,
		court.PricePerHour,
		court.OpenMinute,
		court.CloseMinute,
		court.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create court: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	court.ID = id
	court.CreatedAt = now
	court.UpdatedAt = now
	return nil
}

func (db *DB) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	c, err := scanCourt(db.QueryRowContext(ctx, `SELECT `+courtColumns+` FROM courts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "get court")
	}
	return c, nil
}

func (db *DB) UpdateCourt(ctx context.Context, court *models.Court) error {
	query := `UPDATE courts SET name = ?, sport_type = ?, price_per_hour = ?, open_minute = ?, close_minute = ?,
				is_active = ?, updated_at = ? WHERE id = ?`
	now := utcNow()
	if err := db.execAffectingOne(ctx, "update court", query,
		court.Name,
		court.SportType,
		court.PricePerHour,
		court.OpenMinute,
		court.CloseMinute,
		court.IsActive,
		now,
		court.ID,
	); err != nil {
		return err
	}
	court.UpdatedAt = now
	return nil
}

func (db *DB) ListCourts(ctx context.Context, facilityID int64, activeOnly bool) ([]*models.Court, error) {
	query := `SELECT ` + courtColumns + ` FROM courts WHERE facility_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	defer rows.Close()

	var courts []*models.Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan court: %w", err)
		}
		courts = append(courts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courts: %w", err)
	}
	return courts, nil
}

// CreateBlockedSlot closes a court range. It fails with ErrSlotTaken when a blocking booking or
// another block already covers part of the range.
func (db *DB) CreateBlockedSlot(ctx context.Context, slot *models.AvailabilitySlot) error {
	now := slot.CreatedAt
	if now.IsZero() {
		now = utcNow()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	iv := models.Interval{Start: slot.Start, End: slot.End}
	taken, err := countBlocking(ctx, tx, slot.CourtID, iv, now)
	if err != nil {
		return err
	}
	if taken > 0 {
		return ErrSlotTaken
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO availability_slots (court_id, start_ts, end_ts, is_blocked, reason, created_at) VALUES (?, ?, ?, 1, ?, ?)`,
		slot.CourtID, slot.Start.Unix(), slot.End.Unix(), slot.Reason, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert blocked slot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit blocked slot: %w", err)
	}

	slot.ID = id
	slot.IsBlocked = true
	slot.CreatedAt = now
	return nil
}

func (db *DB) GetBlockedSlot(ctx context.Context, id int64) (*models.AvailabilitySlot, error) {
	var (
		s            models.AvailabilitySlot
		start, endTs int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, court_id, start_ts, end_ts, is_blocked, reason, created_at FROM availability_slots WHERE id = ?`, id,
	).Scan(&s.ID, &s.CourtID, &start, &endTs, &s.IsBlocked, &s.Reason, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get blocked slot")
	}
	s.Start = fromUnix(start)
	s.End = fromUnix(endTs)
	return &s, nil
}

func (db *DB) DeleteBlockedSlot(ctx context.Context, id int64) error {
	return db.execAffectingOne(ctx, "delete blocked slot", `DELETE FROM availability_slots WHERE id = ?`, id)
}

func (db *DB) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	now := utcNow()
	result, err := db.ExecContext(ctx,
		`INSERT INTO photos (facility_id, url, public_id, created_at) VALUES (?, ?, ?, ?)`,
		photo.FacilityID, photo.URL, photo.PublicID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	photo.ID = id
	photo.CreatedAt = now
	return nil
}

func (db *DB) GetPhoto(ctx context.Context, id int64) (*models.Photo, error) {
	var p models.Photo
	err := db.QueryRowContext(ctx, `SELECT id, facility_id, url, public_id, created_at FROM photos WHERE id = ?`, id).
		Scan(&p.ID, &p.FacilityID, &p.URL, &p.PublicID, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get photo")
	}
	return &p, nil
}

func (db *DB) DeletePhoto(ctx context.Context, id int64) error {
	return db.execAffectingOne(ctx, "delete photo", `DELETE FROM photos WHERE id = ?`, id)
}

func (db *DB) ListPhotos(ctx context.Context, facilityID int64) ([]*models.Photo, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, facility_id, url, public_id, created_at FROM photos WHERE facility_id = ? ORDER BY id`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.FacilityID, &p.URL, &p.PublicID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photos: %w", err)
	}
	return photos, nil
}

// CreateReview stores a review and refreshes the facility rating aggregates in the same transaction.
func (db *DB) CreateReview(ctx context.Context, review *models.Review) error {
	now := utcNow()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (facility_id, user_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		review.FacilityID, review.UserID, review.Rating, review.Comment, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE facilities SET
			avg_rating = (SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE facility_id = ?),
			review_count = (SELECT COUNT(*) FROM reviews WHERE facility_id = ?)
		WHERE id = ?`, review.FacilityID, review.FacilityID, review.FacilityID)
	if err != nil {
		return fmt.Errorf("failed to refresh facility rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review: %w", err)
	}
	review.ID = id
	review.CreatedAt = now
	return nil
}

// queryer is the read surface shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
