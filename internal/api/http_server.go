package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the operations exposed over HTTP.
type Services struct {
	Auth         domain.AuthService
	Users        domain.UserService
	Facilities   domain.FacilityService
	Availability domain.AvailabilityService
	Bookings     domain.BookingService
	Payments     domain.PaymentService
	Reports      domain.ReportService
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPServer exposes the REST API.
type HTTPServer struct {
	cfg       config.APIConfig
	svc       Services
	health    Pinger
	loc       *time.Location
	maxUpload int64
	server    *http.Server
	limiter   *rateLimiter
	log       zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, health Pinger, loc *time.Location, logger *zerolog.Logger) *HTTPServer {
	if loc == nil {
		loc = time.UTC
	}
	srv := &HTTPServer{
		cfg:       cfg,
		svc:       svc,
		health:    health,
		loc:       loc,
		maxUpload: cfg.HTTP.MaxUploadMB << 20,
		limiter:   newRateLimiter(cfg.RateLimit),
		log:       zerolog.Nop(),
	}
	if srv.maxUpload <= 0 {
		srv.maxUpload = 10 << 20
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.observe(srv.cors(srv.rateLimit(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerifyEmail)
	mux.HandleFunc("POST /api/auth/logout", s.requireLogin(s.handleLogout))
	mux.HandleFunc("GET /api/me", s.requireLogin(s.handleMe))

	mux.HandleFunc("GET /api/venues/popular", s.handlePopularVenues)
	mux.HandleFunc("GET /api/sports/popular", s.handlePopularSports)
	mux.HandleFunc("GET /api/home", s.handleHome)

	mux.HandleFunc("GET /api/facilities", s.handleListFacilities)
	mux.HandleFunc("GET /api/facilities/{id}", s.handleGetFacility)
	mux.HandleFunc("POST /api/facilities", s.requireRole(s.handleCreateFacility, models.RoleOwner))
	mux.HandleFunc("PATCH /api/facilities/{id}", s.requireRole(s.handleUpdateFacility, models.RoleOwner))
	mux.HandleFunc("POST /api/facilities/{id}/courts", s.requireRole(s.handleAddCourt, models.RoleOwner))
	mux.HandleFunc("POST /api/facilities/{id}/photos", s.requireRole(s.handleUploadPhoto, models.RoleOwner))
	mux.HandleFunc("POST /api/facilities/{id}/reviews", s.requireRole(s.handleAddReview, models.RoleUser))
	mux.HandleFunc("DELETE /api/photos/{id}", s.requireRole(s.handleDeletePhoto, models.RoleOwner))

	mux.HandleFunc("PATCH /api/courts/{id}", s.requireRole(s.handleUpdateCourt, models.RoleOwner))
	mux.HandleFunc("GET /api/courts/{id}/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/courts/{id}/schedule", s.handleSchedule)
	mux.HandleFunc("POST /api/courts/{id}/blocks", s.requireRole(s.handleBlockSlot, models.RoleOwner))
	mux.HandleFunc("DELETE /api/blocks/{id}", s.requireRole(s.handleUnblockSlot, models.RoleOwner))

	mux.HandleFunc("GET /api/owner/facilities", s.requireRole(s.handleOwnerFacilities, models.RoleOwner))
	mux.HandleFunc("GET /api/owner/bookings", s.requireRole(s.handleOwnerBookings, models.RoleOwner))
	mux.HandleFunc("GET /api/owner/stats", s.requireRole(s.handleRevenueStats, models.RoleOwner))

	mux.HandleFunc("POST /api/bookings", s.requireRole(s.handleCreateBooking, models.RoleUser))
	mux.HandleFunc("GET /api/bookings", s.requireRole(s.handleListBookings, models.RoleUser))
	mux.HandleFunc("GET /api/bookings/{id}", s.requireRole(s.handleGetBooking, models.RoleUser, models.RoleOwner))
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.requireRole(s.handleCancelBooking, models.RoleUser, models.RoleOwner))
	mux.HandleFunc("POST /api/bookings/{id}/payment-order", s.requireRole(s.handleCreateOrder, models.RoleUser))
	mux.HandleFunc("POST /api/bookings/{id}/payment-verify", s.requireRole(s.handleVerifyPayment, models.RoleUser))
	mux.HandleFunc("GET /api/bookings/{id}/receipt", s.requireRole(s.handleReceipt, models.RoleUser, models.RoleOwner))
	mux.HandleFunc("POST /api/payments/webhook", s.handleWebhook)

	mux.HandleFunc("GET /api/admin/facilities", s.requireRole(s.handleModerationQueue, models.RoleAdmin))
	mux.HandleFunc("GET /api/admin/users", s.requireRole(s.handleListUsers, models.RoleAdmin))
	mux.HandleFunc("POST /api/users/{id}/ban", s.requireRole(s.handleBanUser, models.RoleAdmin))
	mux.HandleFunc("POST /api/users/{id}/unban", s.requireRole(s.handleUnbanUser, models.RoleAdmin))
	mux.HandleFunc("GET /api/admin/stats", s.requireRole(s.handleRevenueStats, models.RoleAdmin))
	mux.HandleFunc("GET /api/admin/bookings/export", s.requireRole(s.handleExportBookings, models.RoleAdmin))
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ctxKey int

const requestIDKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// observe tags every request with an id, then logs and measures it once the mux has resolved the route.
func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		req := r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Str("request_id", requestID).Interface("panic", rec).Msg("handler panicked")
				if !recorder.wrote {
					writeError(recorder, req, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}

			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			dur := time.Since(start)
			metrics.ObserveHTTP(route, recorder.status, dur)
			s.log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.status).
				Dur("duration", dur).
				Msg("http request")
		}()

		next.ServeHTTP(recorder, req)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cors wraps next with the configured origin policy. No origins means no CORS headers at all.
func (s *HTTPServer) cors(next http.Handler) http.Handler {
	if len(s.cfg.HTTP.AllowedOrigins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Content-Disposition"},
		MaxAge:         600,
	}).Handler(next)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Code: code, RequestID: requestIDFrom(r.Context())})
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
