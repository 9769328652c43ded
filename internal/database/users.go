package database

import (
	"context"
	"fmt"
	"strings"

	"courtbook/internal/models"
)

const userColumns = `id, email, password_hash, full_name, phone, role, is_active, is_verified,
	verification_token, banned_reason, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.IsActive, &u.IsVerified,
		&u.VerificationToken, &u.BannedReason, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				email, password_hash, full_name, phone, role, is_active, is_verified,
				verification_token, banned_reason, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.PasswordHash,
		user.FullName,
		user.Phone,
		user.Role,
		user.IsActive,
		user.IsVerified,
		user.VerificationToken,
		user.BannedReason,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "get user by id")
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, notFound(err, "get user by email")
	}
	return u, nil
}

func (db *DB) GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE verification_token = ?`, token))
	if err != nil {
		return nil, notFound(err, "get user by verification token")
	}
	return u, nil
}

func (db *DB) MarkUserVerified(ctx context.Context, id int64) error {
	query := `UPDATE users SET is_verified = 1, verification_token = '', updated_at = ? WHERE id = ?`
	return db.execAffectingOne(ctx, "mark user verified", query, utcNow(), id)
}

func (db *DB) SetUserActive(ctx context.Context, id int64, active bool, reason string) error {
	if active {
		reason = ""
	}
	query := `UPDATE users SET is_active = ?, banned_reason = ?, updated_at = ? WHERE id = ?`
	return db.execAffectingOne(ctx, "set user active", query, active, reason, utcNow(), id)
}

func (db *DB) ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]*models.User, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.Active)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, "(email LIKE ? OR full_name LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + clause + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}

// execAffectingOne runs an UPDATE/DELETE by primary key and reports ErrNotFound when nothing matched.
func (db *DB) execAffectingOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
