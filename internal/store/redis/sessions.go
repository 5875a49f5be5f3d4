// Package redis keeps sessions in Redis: one hash per session plus a set per
// user indexing that user's sessions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"BookSnippetCollector/internal/domain"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

func Open(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type SessionsStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewSessionsStore(client redis.UniversalClient) *SessionsStore {
	return &SessionsStore{client: client, now: time.Now}
}

func sessionKey(id string) string      { return sessionKeyPrefix + id }
func userSessionsKey(id string) string { return userSessionKeyPrefix + id }

func (s *SessionsStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error) {
	id := uuid.NewString()
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return "", errors.New("create session: expiry is in the past")
	}

	key := sessionKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"user_id":    userID,
			"created_at": s.now().Unix(),
			"expires_at": expiresAt.Unix(),
			"ip_address": ip,
			"user_agent": userAgent,
		})
		pipe.ExpireAt(ctx, key, expiresAt)
		pipe.SAdd(ctx, userSessionsKey(userID), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *SessionsStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(data) == 0 {
		return domain.Session{}, domain.ErrNotFound
	}

	created, _ := strconv.ParseInt(data["created_at"], 10, 64)
	expires, _ := strconv.ParseInt(data["expires_at"], 10, 64)
	sess := domain.Session{
		ID:        sessionID,
		UserID:    data["user_id"],
		CreatedAt: time.Unix(created, 0).UTC(),
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}
	if sess.UserID == "" || !sess.ExpiresAt.After(s.now()) {
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, nil
}

func (s *SessionsStore) RevokeSession(ctx context.Context, sessionID string, when time.Time) error {
	key := sessionKey(sessionID)
	userID, err := s.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, userSessionsKey(userID), sessionID)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *SessionsStore) RevokeUserSessions(ctx context.Context, userID string, when time.Time) error {
	setKey := userSessionsKey(userID)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, setKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
