package service

import (
	"context"
	"strings"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	eventBus domain.EventPublisher
	logger   zerolog.Logger
}

func NewUserService(users domain.UserRepository, sessions domain.SessionRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *UserService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "user_service").Logger()
	}
	return &UserService{users: users, sessions: sessions, eventBus: eventBus, logger: l}
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "user")
	}
	return u, nil
}

func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) (models.Paginated[*models.User], error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return models.Paginated[*models.User]{}, domain.ValidationError{Field: "role", Msg: "unknown role"}
	}
	items, total, err := s.users.ListUsers(ctx, filter, page)
	if err != nil {
		return models.Paginated[*models.User]{}, err
	}
	return models.NewPaginated(items, page, total), nil
}

// BanUser deactivates an account and revokes every session it holds.
func (s *UserService) BanUser(ctx context.Context, actor *models.User, id int64, reason string) (*models.User, error) {
	target, err := s.moderationTarget(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ValidationError{Field: "reason", Msg: "is required"}
	}

	if err := s.users.SetUserActive(ctx, id, false, reason); err != nil {
		return nil, notFoundAs(err, "user")
	}
	if err := s.sessions.DeleteUserSessions(ctx, id); err != nil {
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to revoke sessions of banned user")
	}
	target.IsActive = false
	target.BannedReason = reason

	if s.eventBus != nil {
		payload := events.UserEventPayload{UserID: target.ID, Email: target.Email, Role: string(target.Role), Reason: reason}
		if err := s.eventBus.PublishJSON(events.EventUserBanned, payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish user event")
		}
	}
	s.logger.Info().Int64("user_id", id).Int64("admin_id", actor.ID).Msg("user banned")
	return target, nil
}

func (s *UserService) UnbanUser(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	target, err := s.moderationTarget(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetUserActive(ctx, id, true, ""); err != nil {
		return nil, notFoundAs(err, "user")
	}
	target.IsActive = true
	target.BannedReason = ""
	s.logger.Info().Int64("user_id", id).Int64("admin_id", actor.ID).Msg("user unbanned")
	return target, nil
}

// moderationTarget loads a user an admin may ban: never themselves and never another admin.
func (s *UserService) moderationTarget(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !isAdmin(actor) {
		return nil, domain.ForbiddenError{Msg: "admin role required"}
	}
	if actor.ID == id {
		return nil, domain.ForbiddenError{Msg: "cannot moderate your own account"}
	}
	target, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role == models.RoleAdmin {
		return nil, domain.ForbiddenError{Msg: "cannot moderate another admin"}
	}
	return target, nil
}
