package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from the primary store and switches to the fallback
// after the first primary error, probing the primary again once a minute.
type FailoverSessionRepository struct {
	primary  domain.SessionRepository
	fallback domain.SessionRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Load() {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverSessionRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, id)
		if err == nil {
			r.markUp()
			if session != nil {
				return session, nil
			}
			// sessions issued during an outage live only in the fallback
			return r.fallback.GetSession(ctx, id)
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, id)
}

// DeleteSession revokes in both stores so a session cannot survive a failover.
func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, id string) error {
	if r.usePrimary() {
		if err := r.primary.DeleteSession(ctx, id); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.DeleteSession(ctx, id)
}

func (r *FailoverSessionRepository) DeleteUserSessions(ctx context.Context, userID int64) error {
	if r.usePrimary() {
		if err := r.primary.DeleteUserSessions(ctx, userID); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.DeleteUserSessions(ctx, userID)
}

func (r *FailoverSessionRepository) FailureCount(ctx context.Context, key string) (int, error) {
	if r.usePrimary() {
		count, err := r.primary.FailureCount(ctx, key)
		if err == nil {
			r.markUp()
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.FailureCount(ctx, key)
}

func (r *FailoverSessionRepository) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	if r.usePrimary() {
		count, err := r.primary.RecordFailure(ctx, key, window)
		if err == nil {
			r.markUp()
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.RecordFailure(ctx, key, window)
}

// ResetFailures clears both stores so counts from an outage do not linger.
func (r *FailoverSessionRepository) ResetFailures(ctx context.Context, key string) error {
	if r.usePrimary() {
		if err := r.primary.ResetFailures(ctx, key); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.ResetFailures(ctx, key)
}
