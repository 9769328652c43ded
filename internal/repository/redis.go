package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
	rateLimitKeyPrefix   = "rate_limit:"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisSessionRepository stores sessions under session:<id> and indexes them per user
// so a ban can revoke all of them at once.
type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func userSessionsKey(userID int64) string {
	return userSessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if r.client == nil {
		return errNilClient
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	indexKey := userSessionsKey(session.UserID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, data, ttl)
	pipe.SAdd(ctx, indexKey, session.ID)
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

// GetSession returns nil without error when the session does not exist or has expired.
func (r *RedisSessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) DeleteSession(ctx context.Context, id string) error {
	if r.client == nil {
		return errNilClient
	}
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	if session != nil {
		pipe.SRem(ctx, userSessionsKey(session.UserID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteUserSessions(ctx context.Context, userID int64) error {
	if r.client == nil {
		return errNilClient
	}
	indexKey := userSessionsKey(userID)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, indexKey)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) FailureCount(ctx context.Context, key string) (int, error) {
	if r.client == nil {
		return 0, errNilClient
	}
	count, err := r.client.Get(ctx, rateLimitKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read failure count: %w", err)
	}
	return count, nil
}

// RecordFailure counts a failure in a fixed window that starts at the first one.
func (r *RedisSessionRepository) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	if r.client == nil {
		return 0, errNilClient
	}
	fullKey := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment failure count: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set failure window: %w", err)
		}
	}
	return int(count), nil
}

func (r *RedisSessionRepository) ResetFailures(ctx context.Context, key string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset failure count: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
