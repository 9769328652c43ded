package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/auth"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/models"
	"courtbook/internal/repository"
	"courtbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPrice = int64(40000)

type apiEnv struct {
	db       *database.DB
	server   *HTTPServer
	tokens   *auth.TokenManager
	sessions *repository.MemorySessionRepository

	admin    *models.User
	owner    *models.User
	player   *models.User
	facility *models.Facility
	court    *models.Court
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	return newAPIEnvWithConfig(t, config.APIConfig{})
}

func newAPIEnvWithConfig(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &apiEnv{
		db:       db,
		tokens:   auth.NewTokenManager("api-test-secret-0123456789", "courtbook-test", time.Hour),
		sessions: repository.NewMemorySessionRepository(),
	}

	bookingCfg := config.BookingConfig{SlotMinutes: 30, MaxAdvanceDays: 30, PendingHold: 15 * time.Minute, Currency: "thb"}
	authCfg := config.AuthConfig{BcryptCost: bcrypt.MinCost, ExposeVerificationToken: true}

	bookings := service.NewBookingService(db, db, nil, nil, bookingCfg, time.UTC, &logger)
	svc := Services{
		Auth:         service.NewAuthService(db, env.sessions, env.tokens, nil, nil, authCfg, &logger),
		Users:        service.NewUserService(db, env.sessions, nil, &logger),
		Facilities:   service.NewFacilityService(db, nil, nil, "test", &logger),
		Availability: service.NewAvailabilityService(db, db, time.UTC),
		Bookings:     bookings,
		Payments:     service.NewPaymentService(nil, bookings, db, &logger),
		Reports:      service.NewReportService(db, db, db, time.UTC),
	}
	env.server = NewHTTPServer(cfg, svc, db, time.UTC, &logger)
	env.seed(t)
	return env
}

func (e *apiEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	e.admin = e.createUser(t, "admin@example.com", models.RoleAdmin)
	e.owner = e.createUser(t, "owner@example.com", models.RoleOwner)
	e.player = e.createUser(t, "player@example.com", models.RoleUser)

	e.facility = &models.Facility{
		OwnerID: e.owner.ID,
		Name:    "Riverside Arena",
		Address: "1 River Rd",
		City:    "Bangkok",
		Status:  models.FacilityApproved,
	}
	require.NoError(t, e.db.CreateFacility(ctx, e.facility))

	e.court = &models.Court{
		FacilityID:   e.facility.ID,
		Name:         "Court 1",
		SportType:    "badminton",
		PricePerHour: testPrice,
		IsActive:     true,
	}
	require.NoError(t, e.db.CreateCourt(ctx, e.court))
}

func (e *apiEnv) createUser(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     email,
		Role:         role,
		IsActive:     true,
		IsVerified:   true,
	}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

// tokenFor opens a session for u without going through login.
func (e *apiEnv) tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	sid := uuid.NewString()
	token, expiresAt, err := e.tokens.Issue(u, sid)
	require.NoError(t, err)
	require.NoError(t, e.sessions.SaveSession(context.Background(), &models.Session{
		ID:        sid,
		UserID:    u.ID,
		Role:      u.Role,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}))
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

// slotStart is a whole hour two days ahead, safely inside the booking window.
func slotStart() time.Time {
	return time.Now().UTC().Truncate(time.Hour).Add(48 * time.Hour)
}
