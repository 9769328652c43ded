package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrSlotTaken              = errors.New("slot overlaps an existing booking or block")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrDuplicate              = errors.New("duplicate record")
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens (and migrates) the SQLite database at path. Writers take the lock at BEGIN.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func dsn(path string, memory bool) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=on"}
	if !memory {
		params = append(params, "_journal_mode=WAL")
	}
	return path + "?" + strings.Join(params, "&")
}

// Path is the on-disk location used by backups.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK (role IN ('ADMIN', 'OWNER', 'USER')),
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_verified BOOLEAN NOT NULL DEFAULT 0,
			verification_token TEXT NOT NULL DEFAULT '',
			banned_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS facilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			city TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			avg_rating REAL NOT NULL DEFAULT 0,
			review_count INTEGER NOT NULL DEFAULT 0,
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS courts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			facility_id INTEGER NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			sport_type TEXT NOT NULL,
			price_per_hour INTEGER NOT NULL CHECK (price_per_hour >= 0),
			open_minute INTEGER NOT NULL DEFAULT 0,
			close_minute INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS availability_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			court_id INTEGER NOT NULL REFERENCES courts(id) ON DELETE CASCADE,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			is_blocked BOOLEAN NOT NULL DEFAULT 1,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			CHECK (start_ts < end_ts)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			court_id INTEGER NOT NULL REFERENCES courts(id),
			facility_id INTEGER NOT NULL REFERENCES facilities(id),
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			total_price INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			payment_order_id TEXT NOT NULL DEFAULT '',
			txn_reference TEXT NOT NULL DEFAULT '',
			hold_expires_at INTEGER NOT NULL DEFAULT 0,
			cancel_reason TEXT NOT NULL DEFAULT '',
			cancelled_by INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK (start_ts < end_ts)
		)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			facility_id INTEGER NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			public_id TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			facility_id INTEGER NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id),
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			UNIQUE (facility_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			booking_id INTEGER NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL,
			processed_at DATETIME,
			next_retry_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_verification ON users(verification_token) WHERE verification_token <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_facilities_status ON facilities(status, avg_rating DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_facilities_owner ON facilities(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_courts_facility ON courts(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_court_time ON availability_slots(court_id, start_ts, end_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_court_time ON bookings(court_id, start_ts, end_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_facility ON bookings(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_facility ON photos(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func fromUnix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
