package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	down := NewHTTPServer(config.APIConfig{}, Services{}, stubPinger{err: errors.New("disk gone")}, nil, nil)
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoleGateResponses(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/bookings", "", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "login_required", body.Code)
	assert.Equal(t, "login required", body.Error)
	assert.Equal(t, rec.Header().Get(requestIDHeader), body.RequestID)

	unverified := &models.User{Email: "fresh@example.com", PasswordHash: "x", FullName: "Fresh", Role: models.RoleUser, IsActive: true}
	require.NoError(t, env.db.CreateUser(context.Background(), unverified))
	freshToken := env.tokenFor(t, unverified)

	rec = env.do(t, http.MethodGet, "/api/bookings", freshToken, nil)
	requireStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, "verification_required", decodeBody[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/me", freshToken, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, unverified.ID, decodeBody[models.User](t, rec).ID)

	rec = env.do(t, http.MethodPost, "/api/bookings", env.tokenFor(t, env.owner), map[string]any{})
	requireStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, "unauthorized", decodeBody[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/admin/users", env.tokenFor(t, env.admin), nil)
	requireStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/admin/users", env.tokenFor(t, env.player), nil)
	requireStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodGet, "/api/bookings", "not-a-jwt", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
	assert.Equal(t, "unauthenticated", decodeBody[errorBody](t, rec).Code)
}

func TestAuthFlow(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "new@example.com",
		"password": "long-enough-pw",
		"fullName": "New Player",
	})
	requireStatus(t, rec, http.StatusCreated)
	reg := decodeBody[models.RegisterResult](t, rec)
	require.NotEmpty(t, reg.VerificationToken)
	assert.Equal(t, models.RoleUser, reg.User.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "new@example.com",
		"password": "long-enough-pw",
		"fullName": "Again",
	})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{"token": reg.VerificationToken})
	requireStatus(t, rec, http.StatusOK)
	assert.True(t, decodeBody[models.User](t, rec).IsVerified)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@example.com", "password": "wrong-password"})
	requireStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@example.com", "password": "long-enough-pw"})
	requireStatus(t, rec, http.StatusOK)
	login := decodeBody[models.LoginResult](t, rec)
	require.NotEmpty(t, login.AccessToken)

	rec = env.do(t, http.MethodGet, "/api/me", login.AccessToken, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "new@example.com", decodeBody[models.User](t, rec).Email)

	rec = env.do(t, http.MethodPost, "/api/auth/logout", login.AccessToken, nil)
	requireStatus(t, rec, http.StatusNoContent)

	rec = env.do(t, http.MethodGet, "/api/me", login.AccessToken, nil)
	requireStatus(t, rec, http.StatusUnauthorized)
}

func TestRejectsUnknownFields(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "admin": "true"})
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "validation_error", decodeBody[errorBody](t, rec).Code)
}

func TestBookingEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	player := env.tokenFor(t, env.player)
	owner := env.tokenFor(t, env.owner)
	start := slotStart()

	rec := env.do(t, http.MethodPost, "/api/bookings", player, models.CreateBookingRequest{
		CourtID: env.court.ID, Start: start, End: start.Add(time.Hour), PaymentMethod: "promptpay",
	})
	requireStatus(t, rec, http.StatusCreated)
	booking := decodeBody[models.Booking](t, rec)
	assert.Equal(t, models.BookingPending, booking.Status)
	assert.Equal(t, testPrice, booking.TotalPrice)

	rec = env.do(t, http.MethodPost, "/api/bookings", player, models.CreateBookingRequest{
		CourtID: env.court.ID, Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute), PaymentMethod: "promptpay",
	})
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, "slot_conflict", decodeBody[errorBody](t, rec).Code)

	path := fmt.Sprintf("/api/courts/%d/availability?start=%s&end=%s", env.court.ID,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))
	rec = env.do(t, http.MethodGet, path, "", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["available"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/courts/%d/availability?start=%s", env.court.ID, start.Format(time.RFC3339)), "", nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/courts/%d/schedule?date=%s", env.court.ID, start.Format(dateLayout)), "", nil)
	requireStatus(t, rec, http.StatusOK)
	schedule := decodeBody[struct {
		Busy []models.BusyInterval `json:"busy"`
	}](t, rec)
	require.Len(t, schedule.Busy, 1)
	assert.Equal(t, booking.ID, schedule.Busy[0].RefID)

	bookingPath := fmt.Sprintf("/api/bookings/%d", booking.ID)
	requireStatus(t, env.do(t, http.MethodGet, bookingPath, owner, nil), http.StatusOK)

	stranger := env.createUser(t, "stranger@example.com", models.RoleUser)
	rec = env.do(t, http.MethodGet, bookingPath, env.tokenFor(t, stranger), nil)
	requireStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, "forbidden", decodeBody[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/bookings?page=1&limit=5", player, nil)
	requireStatus(t, rec, http.StatusOK)
	list := decodeBody[models.Paginated[models.Booking]](t, rec)
	assert.Equal(t, int64(1), list.Meta.Total)
	assert.Equal(t, 5, list.Meta.Limit)

	rec = env.do(t, http.MethodGet, "/api/owner/bookings", owner, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decodeBody[models.Paginated[models.Booking]](t, rec).Data, 1)

	rec = env.do(t, http.MethodGet, bookingPath+"/receipt", player, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, bookingPath+"/cancel", player, map[string]string{"reason": "rain"})
	requireStatus(t, rec, http.StatusOK)
	cancelled := decodeBody[models.Booking](t, rec)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)

	rec = env.do(t, http.MethodPost, bookingPath+"/cancel", player, nil)
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, "invalid_transition", decodeBody[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/bookings/abc", player, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/bookings/9999", player, nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestFacilityEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.tokenFor(t, env.owner)
	admin := env.tokenFor(t, env.admin)
	player := env.tokenFor(t, env.player)

	rec := env.do(t, http.MethodPost, "/api/facilities", owner, models.FacilityInput{
		Name: "Hilltop Courts", Address: "9 Hill St", City: "Chiang Mai",
	})
	requireStatus(t, rec, http.StatusCreated)
	draft := decodeBody[models.Facility](t, rec)
	assert.Equal(t, models.FacilityDraft, draft.Status)

	draftPath := fmt.Sprintf("/api/facilities/%d", draft.ID)
	requireStatus(t, env.do(t, http.MethodGet, draftPath, "", nil), http.StatusNotFound)
	requireStatus(t, env.do(t, http.MethodGet, draftPath, owner, nil), http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/facilities", "", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(1), decodeBody[models.Paginated[models.Facility]](t, rec).Meta.Total)

	rec = env.do(t, http.MethodGet, "/api/owner/facilities", owner, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(2), decodeBody[models.Paginated[models.Facility]](t, rec).Meta.Total)

	rec = env.do(t, http.MethodPatch, draftPath, owner, map[string]string{"status": string(models.FacilityApproved)})
	requireStatus(t, rec, http.StatusConflict)

	rec = env.do(t, http.MethodPatch, draftPath, owner, map[string]string{"status": string(models.FacilityPendingApproval)})
	requireStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPatch, draftPath, owner, map[string]string{"status": string(models.FacilityApproved)})
	requireStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodGet, "/api/admin/facilities", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	queue := decodeBody[models.Paginated[models.Facility]](t, rec)
	require.Len(t, queue.Data, 1)
	assert.Equal(t, draft.ID, queue.Data[0].ID)

	requireStatus(t, env.do(t, http.MethodGet, "/api/admin/facilities?status=bogus", admin, nil), http.StatusBadRequest)

	rec = env.do(t, http.MethodPatch, draftPath, admin, map[string]string{"status": string(models.FacilityApproved)})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, models.FacilityApproved, decodeBody[models.Facility](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/facilities?city=Chiang%20Mai", "", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(1), decodeBody[models.Paginated[models.Facility]](t, rec).Meta.Total)

	name, sport, price := "Center Court", "Tennis", int64(55000)
	rec = env.do(t, http.MethodPost, draftPath+"/courts", owner, models.CourtInput{Name: &name, SportType: &sport, PricePerHour: &price})
	requireStatus(t, rec, http.StatusCreated)
	court := decodeBody[models.Court](t, rec)
	assert.Equal(t, "tennis", court.SportType)

	price = -1
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/courts/%d", court.ID), owner, models.CourtInput{PricePerHour: &price})
	requireStatus(t, rec, http.StatusBadRequest)

	start := slotStart()
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/courts/%d/blocks", court.ID), owner, models.BlockRequest{
		Start: start, End: start.Add(2 * time.Hour), Reason: "resurfacing",
	})
	requireStatus(t, rec, http.StatusCreated)
	slot := decodeBody[models.AvailabilitySlot](t, rec)

	rec = env.do(t, http.MethodPost, "/api/bookings", player, models.CreateBookingRequest{
		CourtID: court.ID, Start: start, End: start.Add(time.Hour), PaymentMethod: "card",
	})
	requireStatus(t, rec, http.StatusConflict)

	requireStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/api/blocks/%d", slot.ID), player, nil), http.StatusForbidden)
	requireStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/api/blocks/%d", slot.ID), owner, nil), http.StatusNoContent)

	rec = env.do(t, http.MethodPost, "/api/bookings", player, models.CreateBookingRequest{
		CourtID: court.ID, Start: start, End: start.Add(time.Hour), PaymentMethod: "card",
	})
	requireStatus(t, rec, http.StatusCreated)

	rec = env.do(t, http.MethodPost, draftPath+"/reviews", player, models.ReviewInput{Rating: 4, Comment: "nice"})
	requireStatus(t, rec, http.StatusCreated)
	rec = env.do(t, http.MethodPost, draftPath+"/reviews", player, models.ReviewInput{Rating: 9})
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestUploadPhotoWithoutMediaHost(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.tokenFor(t, env.owner)
	path := fmt.Sprintf("/api/facilities/%d/photos", env.facility.ID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "court.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	requireStatus(t, rec, http.StatusBadGateway)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "upstream service unavailable", body.Error)
	assert.Equal(t, "upstream_error", body.Code)

	rec = env.do(t, http.MethodPost, path, owner, map[string]string{"file": "x"})
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestPaymentEndpointsWithoutGateway(t *testing.T) {
	env := newAPIEnv(t)
	player := env.tokenFor(t, env.player)
	start := slotStart()

	rec := env.do(t, http.MethodPost, "/api/bookings", player, models.CreateBookingRequest{
		CourtID: env.court.ID, Start: start, End: start.Add(time.Hour), PaymentMethod: "card",
	})
	requireStatus(t, rec, http.StatusCreated)
	booking := decodeBody[models.Booking](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/payment-order", booking.ID), player, nil)
	requireStatus(t, rec, http.StatusBadGateway)
	assert.NotContains(t, rec.Body.String(), "not configured")

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/payment-verify", booking.ID), player, map[string]string{"txnReference": "chrg_1"})
	requireStatus(t, rec, http.StatusBadGateway)

	rec = env.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]string{"id": "evnt_1", "key": "charge.complete"})
	requireStatus(t, rec, http.StatusBadGateway)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestReportEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.tokenFor(t, env.admin)
	owner := env.tokenFor(t, env.owner)

	rec := env.do(t, http.MethodGet, "/api/venues/popular?limit=3", "", nil)
	requireStatus(t, rec, http.StatusOK)
	venues := decodeBody[map[string][]models.PopularVenue](t, rec)["data"]
	require.Len(t, venues, 1)
	require.NotNil(t, venues[0].StartingPrice)
	assert.Equal(t, testPrice, *venues[0].StartingPrice)

	rec = env.do(t, http.MethodGet, "/api/sports/popular", "", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "{\"data\":[]}\n", rec.Body.String())

	requireStatus(t, env.do(t, http.MethodGet, "/api/home", "", nil), http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/owner/stats?from=2020-01-01&to=2020-02-01", owner, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(0), decodeBody[models.RevenueStats](t, rec).Bookings)

	rec = env.do(t, http.MethodGet, "/api/admin/stats?from=yesterday", admin, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/admin/stats?from=2020-02-01&to=2020-01-01", admin, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/admin/bookings/export", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	requireStatus(t, env.do(t, http.MethodGet, "/api/admin/bookings/export", owner, nil), http.StatusForbidden)
}

func TestBanEndpointsRevokeAccess(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.tokenFor(t, env.admin)
	player := env.tokenFor(t, env.player)

	banPath := fmt.Sprintf("/api/users/%d/ban", env.player.ID)
	requireStatus(t, env.do(t, http.MethodPost, banPath, admin, map[string]string{"reason": ""}), http.StatusBadRequest)

	rec := env.do(t, http.MethodPost, banPath, admin, map[string]string{"reason": "abuse"})
	requireStatus(t, rec, http.StatusOK)
	assert.False(t, decodeBody[models.User](t, rec).IsActive)

	requireStatus(t, env.do(t, http.MethodGet, "/api/me", player, nil), http.StatusUnauthorized)

	rec = env.do(t, http.MethodGet, "/api/admin/users?active=false", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(1), decodeBody[models.Paginated[models.User]](t, rec).Meta.Total)

	requireStatus(t, env.do(t, http.MethodGet, "/api/admin/users?active=maybe", admin, nil), http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/unban", env.player.ID), admin, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.True(t, decodeBody[models.User](t, rec).IsActive)

	requireStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/ban", env.admin.ID), admin, map[string]string{"reason": "x"}), http.StatusForbidden)
}

func TestRateLimit(t *testing.T) {
	env := newAPIEnvWithConfig(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})

	requireStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
	requireStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	requireStatus(t, rec, http.StatusTooManyRequests)
	assert.Equal(t, "rate_limited", decodeBody[errorBody](t, rec).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newAPIEnvWithConfig(t, config.APIConfig{HTTP: config.APIHTTPConfig{AllowedOrigins: []string{"https://courtbook.example"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "https://courtbook.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://courtbook.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://courtbook.example")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "https://courtbook.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteErrMapping(t *testing.T) {
	srv := NewHTTPServer(config.APIConfig{}, Services{}, nil, nil, nil)
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"validation", domain.InvalidInterval("start must be before end"), http.StatusBadRequest, "validation_error", "interval: start must be before end"},
		{"not found", domain.NotFoundError{Resource: "court"}, http.StatusNotFound, "not_found", "court not found"},
		{"unauthorized", domain.UnauthorizedError{Msg: "session expired"}, http.StatusUnauthorized, "unauthenticated", "session expired"},
		{"forbidden", domain.ForbiddenError{}, http.StatusForbidden, "forbidden", "forbidden"},
		{"transition", domain.TransitionError{Resource: "booking", From: "COMPLETED", To: "CANCELLED"}, http.StatusConflict, "invalid_transition", "invalid booking transition from COMPLETED to CANCELLED"},
		{"slot", domain.SlotConflictError{CourtID: 1}, http.StatusConflict, "slot_conflict", "requested time slot is no longer available"},
		{"confirmation", domain.ConflictingConfirmationError{BookingID: 3}, http.StatusConflict, "conflicting_confirmation", "booking 3 already confirmed with a different transaction"},
		{"upstream", fmt.Errorf("create order: %w", domain.UpstreamError{Provider: "omise", Err: errors.New("secret key sk_live leaked")}), http.StatusBadGateway, "upstream_error", "upstream service unavailable"},
		{"unknown", errors.New("sqlite: disk I/O error"), http.StatusInternalServerError, "internal_error", "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeErr(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	logger := zerolog.New(io.Discard)
	srv := &HTTPServer{log: logger, limiter: newRateLimiter(config.APIRateLimitConfig{})}
	h := srv.observe(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeBody[errorBody](t, rec).Code)
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)

	got, err := parseTime("2030-05-01", "from", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 4, 30, 17, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseTime("2030-05-01T10:00:00Z", "from", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = parseTime(" ", "from", loc)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseTime("05/01/2030", "from", loc)
	assert.True(t, domain.IsValidation(err))
}
