package repository

import (
	"context"
	"sync"
	"time"

	"courtbook/internal/models"
)

// MemorySessionRepository is the in-process fallback used when Redis is unavailable.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]*models.Session),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *MemorySessionRepository) GetSession(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	if s.Expired(r.now()) {
		delete(r.sessions, id)
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) DeleteUserSessions(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *MemorySessionRepository) FailureCount(_ context.Context, key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rateLimits[key]
	if !ok || r.now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

func (r *MemorySessionRepository) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (r *MemorySessionRepository) ResetFailures(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rateLimits, key)
	return nil
}
