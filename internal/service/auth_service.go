package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"courtbook/internal/auth"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const loginRateKeyPrefix = "login:"

var (
	errInvalidCredentials = domain.UnauthorizedError{Msg: "invalid email or password"}
	errTooManyAttempts    = domain.UnauthorizedError{Msg: "too many login attempts, try again later"}
)

type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	tokens   *auth.TokenManager
	captcha  domain.CaptchaVerifier
	eventBus domain.EventPublisher
	cfg      config.AuthConfig
	now      clock
	logger   zerolog.Logger
}

// NewAuthService wires registration and login. captcha may be nil.
func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	tokens *auth.TokenManager,
	captcha domain.CaptchaVerifier,
	eventBus domain.EventPublisher,
	cfg config.AuthConfig,
	logger *zerolog.Logger,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = 5
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "auth_service").Logger()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		captcha:  captcha,
		eventBus: eventBus,
		cfg:      cfg,
		now:      systemClock,
		logger:   l,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ValidationError{Field: "email", Msg: "is not a valid address"}
	}
	return email, nil
}

func (s *AuthService) verifyCaptcha(ctx context.Context, token, remoteIP string) error {
	if s.captcha == nil {
		return nil
	}
	return s.captcha.Verify(ctx, token, remoteIP)
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error) {
	if err := s.verifyCaptcha(ctx, req.CaptchaToken, req.RemoteIP); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, domain.ValidationError{Field: "password", Msg: fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength)}
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, domain.ValidationError{Field: "fullName", Msg: "is required"}
	}

	role := models.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, domain.ValidationError{Field: "role", Msg: err.Error(), Err: err}
		}
		role = parsed
	}
	if role == models.RoleAdmin {
		return nil, domain.ValidationError{Field: "role", Msg: "must be USER or OWNER"}
	}

	hash, err := auth.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:             email,
		PasswordHash:      hash,
		FullName:          fullName,
		Phone:             strings.TrimSpace(req.Phone),
		Role:              role,
		IsActive:          true,
		VerificationToken: uuid.NewString(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, domain.ValidationError{Field: "email", Msg: "is already registered", Err: err}
		}
		return nil, err
	}

	result := &models.RegisterResult{User: user}
	payload := events.UserEventPayload{UserID: user.ID, Email: user.Email, Role: string(user.Role)}
	if s.cfg.ExposeVerificationToken {
		result.VerificationToken = user.VerificationToken
		payload.Token = user.VerificationToken
	}
	s.publish(events.EventUserRegistered, payload)

	s.logger.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return result, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ValidationError{Field: "token", Msg: "is required"}
	}
	user, err := s.users.GetUserByVerificationToken(ctx, token)
	if err != nil {
		return nil, notFoundAs(err, "verification token")
	}
	if err := s.users.MarkUserVerified(ctx, user.ID); err != nil {
		return nil, notFoundAs(err, "user")
	}
	user.IsVerified = true
	user.VerificationToken = ""
	return user, nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, key string) {
	if _, err := s.sessions.RecordFailure(ctx, key, s.cfg.LoginWindow); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record login failure")
	}
}

// Login checks credentials and opens a server-side session carried in the token's sid claim.
// Unverified users may log in; the role gate routes them to verification.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	if err := s.verifyCaptcha(ctx, req.CaptchaToken, req.RemoteIP); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, errInvalidCredentials
	}

	rateKey := loginRateKeyPrefix + email
	failures, err := s.sessions.FailureCount(ctx, rateKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login failure count unavailable")
	} else if failures >= s.cfg.LoginAttempts {
		return nil, errTooManyAttempts
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.recordLoginFailure(ctx, rateKey)
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.recordLoginFailure(ctx, rateKey)
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.UnauthorizedError{Msg: "account suspended"}
	}
	if failures > 0 {
		if err := s.sessions.ResetFailures(ctx, rateKey); err != nil {
			s.logger.Warn().Err(err).Msg("failed to reset login failures")
		}
	}

	sessionID := uuid.NewString()
	token, expiresAt, err := s.tokens.Issue(user, sessionID)
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Role:      user.Role,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user logged in")
	return &models.LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, sessionID)
}

// Authenticate resolves a bearer token into its user and live session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, *models.Session, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, nil, domain.UnauthorizedError{Msg: "invalid token"}
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, domain.UnauthorizedError{Msg: "invalid token"}
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.UserID != userID || session.Expired(s.now()) {
		return nil, nil, domain.UnauthorizedError{Msg: "session expired"}
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, domain.UnauthorizedError{Msg: "session expired"}
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, domain.UnauthorizedError{Msg: "account suspended"}
	}
	return user, session, nil
}

func (s *AuthService) publish(eventType string, payload events.UserEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish user event")
	}
}
