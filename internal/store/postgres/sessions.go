package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BookSnippetCollector/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionsStore struct {
	pool *pgxpool.Pool
}

func NewSessionsStore(pool *pgxpool.Pool) *SessionsStore {
	return &SessionsStore{pool: pool}
}

// CreateSession inserts a session row and drops the user's expired or
// revoked rows in the same statement.
func (s *SessionsStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error) {
	const q = `
		WITH pruned AS (
			DELETE FROM sessions
			WHERE user_id = @user_id AND (revoked_at IS NOT NULL OR expires_at <= now())
		)
		INSERT INTO sessions (user_id, expires_at, ip, user_agent)
		VALUES (@user_id, @expires_at, @ip, @user_agent)
		RETURNING id
	`

	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, q, pgx.NamedArgs{
		"user_id":    userID,
		"expires_at": expiresAt,
		"ip":         nullIfEmpty(ip),
		"user_agent": nullIfEmpty(userAgent),
	}).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return uuidOrEmpty(id), nil
}

// GetSession returns a live session. Ids that are not UUIDs cannot exist
// and are reported as not found without a round trip.
func (s *SessionsStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return domain.Session{}, domain.ErrNotFound
	}

	const q = `
		SELECT user_id, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND revoked_at IS NULL AND expires_at > now()
	`

	var userID pgtype.UUID
	sess := domain.Session{ID: sessionID}
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&userID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.UserID = uuidOrEmpty(userID)
	return sess, nil
}

func (s *SessionsStore) RevokeSession(ctx context.Context, sessionID string, when time.Time) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, sessionID, when)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions ends every live session of the user.
func (s *SessionsStore) RevokeUserSessions(ctx context.Context, userID string, when time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, when)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
