package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BookSnippetCollector/internal/domain"

	"github.com/jackc/pgx/v5"
)

// SetResetToken stores a pending reset on the user row, replacing any
// earlier one.
func (s *UsersStore) SetResetToken(ctx context.Context, reset domain.PasswordReset) error {
	const q = `
		UPDATE users
		SET reset_token_hash = $2, reset_expires_at = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, reset.UserID, reset.TokenHash, reset.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeResetToken sets the new password and clears the pending reset in a
// single statement, so a token works at most once.
func (s *UsersStore) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.User, error) {
	const q = `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_expires_at = NULL,
		    updated_at = now()
		WHERE reset_token_hash = $1 AND reset_expires_at > $3
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, tokenHash, passwordHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("consume reset token: %w", err)
	}
	return u, nil
}
