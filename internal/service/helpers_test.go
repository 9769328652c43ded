package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	testTen   = time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	testPrice = int64(40000)
)

func fixedClock(t time.Time) clock {
	return func() time.Time { return t }
}

type recordedEvent struct {
	Type    string
	Payload []byte
}

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type ledgerCall struct {
	TaskType  string
	BookingID int64
	Status    string
}

type recordingLedger struct {
	mu    sync.Mutex
	calls []ledgerCall
}

func (l *recordingLedger) EnqueueTask(_ context.Context, taskType string, bookingID int64, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ledgerCall{TaskType: taskType, BookingID: bookingID, Status: status})
	return nil
}

func (l *recordingLedger) snapshot() []ledgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledgerCall(nil), l.calls...)
}

type fixture struct {
	db       *database.DB
	admin    *models.User
	owner    *models.User
	player   *models.User
	other    *models.User
	facility *models.Facility
	court    *models.Court
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "courtbook.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *database.DB, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Email:        email,
		PasswordHash: "x",
		FullName:     email,
		Role:         role,
		IsActive:     true,
		IsVerified:   true,
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

// seedFixture creates an approved facility with one 24h court priced at testPrice per hour.
func seedFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	fx := &fixture{db: db}
	fx.admin = createUser(t, db, "admin@example.com", models.RoleAdmin)
	fx.owner = createUser(t, db, "owner@example.com", models.RoleOwner)
	fx.player = createUser(t, db, "player@example.com", models.RoleUser)
	fx.other = createUser(t, db, "other@example.com", models.RoleUser)

	fx.facility = &models.Facility{
		OwnerID: fx.owner.ID,
		Name:    "Riverside Arena",
		Address: "1 River Rd",
		City:    "Bangkok",
		Status:  models.FacilityApproved,
	}
	require.NoError(t, db.CreateFacility(ctx, fx.facility))

	fx.court = &models.Court{
		FacilityID:   fx.facility.ID,
		Name:         "Court 1",
		SportType:    "badminton",
		PricePerHour: testPrice,
		IsActive:     true,
	}
	require.NoError(t, db.CreateCourt(ctx, fx.court))
	return fx
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		SlotMinutes:    30,
		MaxAdvanceDays: 30,
		PendingHold:    15 * time.Minute,
		Currency:       "thb",
	}
}

type bookingEnv struct {
	*fixture
	svc    *BookingService
	events *recordingPublisher
	ledger *recordingLedger
}

func newBookingEnv(t *testing.T) *bookingEnv {
	t.Helper()
	fx := seedFixture(t)
	env := &bookingEnv{fixture: fx, events: &recordingPublisher{}, ledger: &recordingLedger{}}
	env.svc = NewBookingService(fx.db, fx.db, env.events, env.ledger, testBookingConfig(), time.UTC, nil)
	env.setNow(testNow)
	return env
}

func (e *bookingEnv) setNow(now time.Time) {
	e.svc.now = fixedClock(now)
	e.svc.availability.now = fixedClock(now)
}

func (e *bookingEnv) book(t *testing.T, user *models.User, start time.Time, d time.Duration) (*models.Booking, error) {
	t.Helper()
	return e.svc.CreateBooking(context.Background(), user, models.CreateBookingRequest{
		CourtID:       e.court.ID,
		Start:         start,
		End:           start.Add(d),
		PaymentMethod: "card",
	})
}
