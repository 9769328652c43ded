package api

import (
	"net"
	"net/http"
	"strings"

	"courtbook/internal/authz"
	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// principal is the authenticated caller of a request.
type principal struct {
	User    *models.User
	Session *models.Session
}

type authedHandler func(w http.ResponseWriter, r *http.Request, p principal)

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// authenticate resolves the bearer token. A request without a token yields a nil principal and no error.
func (s *HTTPServer) authenticate(r *http.Request) (*principal, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}
	user, session, err := s.svc.Auth.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return &principal{User: user, Session: session}, nil
}

// viewer is the optional caller of a public route. Bad tokens are treated as anonymous.
func (s *HTTPServer) viewer(r *http.Request) *models.User {
	p, err := s.authenticate(r)
	if err != nil || p == nil {
		return nil
	}
	return p.User
}

// requireLogin admits any authenticated caller, verified or not.
func (s *HTTPServer) requireLogin(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		if p == nil {
			s.writeDecision(w, r, authz.RedirectLogin)
			return
		}
		next(w, r, *p)
	}
}

// requireRole runs the role gate before the handler.
func (s *HTTPServer) requireRole(next authedHandler, roles ...models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		var user *models.User
		if p != nil {
			user = p.User
		}
		if d := authz.Gate(user, roles...); d != authz.Allow {
			s.writeDecision(w, r, d)
			return
		}
		next(w, r, *p)
	}
}

func (s *HTTPServer) writeDecision(w http.ResponseWriter, r *http.Request, d authz.Decision) {
	switch d {
	case authz.RedirectLogin:
		writeError(w, r, http.StatusUnauthorized, d.String(), "login required")
	case authz.RedirectVerify:
		writeError(w, r, http.StatusForbidden, d.String(), "email verification required")
	default:
		writeError(w, r, http.StatusForbidden, authz.RedirectUnauthorized.String(), "insufficient role")
	}
}

// writeErr maps a domain error onto its status code. Upstream and unknown causes are logged, never echoed.
func (s *HTTPServer) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFrom(r.Context())
	switch {
	case domain.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case domain.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case domain.IsUnauthorized(err):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
	case domain.IsForbidden(err):
		writeError(w, r, http.StatusForbidden, "forbidden", err.Error())
	case domain.IsInvalidTransition(err):
		writeError(w, r, http.StatusConflict, "invalid_transition", err.Error())
	case domain.IsSlotConflict(err):
		writeError(w, r, http.StatusConflict, "slot_conflict", err.Error())
	case domain.IsConflictingConfirmation(err):
		writeError(w, r, http.StatusConflict, "conflicting_confirmation", err.Error())
	case domain.IsUpstream(err):
		s.log.Error().Err(err).Str("request_id", requestID).Msg("upstream failure")
		writeError(w, r, http.StatusBadGateway, "upstream_error", "upstream service unavailable")
	default:
		s.log.Error().Err(err).Str("request_id", requestID).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
