package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"BookSnippetCollector/internal/auth"
	"BookSnippetCollector/internal/domain"
)

const (
	defaultResetTTL  = 10 * time.Minute
	resetMailTimeout = 30 * time.Second
)

type ResetUsersStore interface {
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	SetResetToken(ctx context.Context, reset domain.PasswordReset) error
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.User, error)
}

type ResetMailer interface {
	SendPasswordReset(ctx context.Context, toEmail, resetURL string) error
}

type SessionStarter interface {
	StartSession(ctx context.Context, userID, ip, userAgent string) (string, error)
}

type PasswordResetService struct {
	Users        ResetUsersStore
	Sessions     SessionStarter
	Mailer       ResetMailer
	FrontendURL  string
	TokenTTL     time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
	HashPassword func(plaintext string) (string, error)

	// Dispatch runs the mail send. It defaults to a new goroutine.
	Dispatch func(func())
}

// RequestReset issues a reset token for email and mails it. It never reports
// whether the account exists; failures are only logged.
func (s *PasswordResetService) RequestReset(ctx context.Context, emailAddr string) {
	log := s.logger()
	emailAddr = NormalizeEmail(emailAddr)
	if !ValidEmail(emailAddr) {
		return
	}

	u, err := s.Users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error("password reset lookup failed", "err", err)
		}
		return
	}

	raw, tokenHash, err := newResetToken()
	if err != nil {
		log.Error("password reset token generation failed", "err", err)
		return
	}
	err = s.Users.SetResetToken(ctx, domain.PasswordReset{
		UserID:    u.ID,
		TokenHash: tokenHash,
		ExpiresAt: s.now().Add(s.ttl()),
	})
	if err != nil {
		log.Error("password reset store failed", "user_id", u.ID, "err", err)
		return
	}

	if s.Mailer == nil {
		log.Warn("password reset requested but no mail transport is configured", "user_id", u.ID)
		return
	}
	resetURL := s.resetURL(raw)
	mailCtx := context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(mailCtx, resetMailTimeout)
		defer cancel()
		if err := s.Mailer.SendPasswordReset(ctx, u.Email, resetURL); err != nil {
			log.Error("password reset email failed", "user_id", u.ID, "err", err)
			return
		}
		log.Info("password reset email sent", "user_id", u.ID)
	})
}

// ResetPassword consumes a reset token, sets the new password and starts a
// session for the account.
func (s *PasswordResetService) ResetPassword(ctx context.Context, rawToken, newPassword, ip, userAgent string) (domain.User, string, error) {
	rawToken = strings.TrimSpace(rawToken)
	if msg := passwordProblem(newPassword); msg != "" {
		return domain.User{}, "", domain.NewValidationError(map[string]string{"password": msg})
	}
	if rawToken == "" {
		return domain.User{}, "", domain.ErrResetTokenInvalid
	}

	passwordHash, err := s.hash(newPassword)
	if err != nil {
		return domain.User{}, "", err
	}

	u, err := s.Users.ConsumeResetToken(ctx, hashResetToken(rawToken), passwordHash, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrResetTokenInvalid
		}
		return domain.User{}, "", err
	}

	sessID, err := s.Sessions.StartSession(ctx, u.ID, ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, sessID, nil
}

func (s *PasswordResetService) resetURL(raw string) string {
	return strings.TrimRight(s.FrontendURL, "/") + "/reset-password/" + url.PathEscape(raw)
}

func (s *PasswordResetService) dispatch(fn func()) {
	if s.Dispatch != nil {
		s.Dispatch(fn)
		return
	}
	go fn()
}

func (s *PasswordResetService) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return defaultResetTTL
}

func (s *PasswordResetService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PasswordResetService) hash(password string) (string, error) {
	if s.HashPassword != nil {
		return s.HashPassword(password)
	}
	return auth.HashPassword(password)
}

func (s *PasswordResetService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func newResetToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
