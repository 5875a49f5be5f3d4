package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"BookSnippetCollector/internal/auth"
	"BookSnippetCollector/internal/domain"
)

const (
	minPasswordLen = 6
	maxEmailLen    = 254
)

type UsersStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, error)
}

type SessionsStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string, when time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, when time.Time) error
}

type AuthService struct {
	Users        UsersStore
	Sessions     SessionsStore
	SessionTTL   time.Duration
	Now          func() time.Time
	HashPassword func(plaintext string) (string, error)
}

// Register creates a local account. It does not start a session.
func (s *AuthService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = NormalizeEmail(email)
	fields := map[string]string{}
	if !ValidEmail(email) {
		fields["email"] = "a valid email is required"
	}
	if msg := passwordProblem(password); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	passwordHash, err := s.hash(password)
	if err != nil {
		return domain.User{}, err
	}

	return s.Users.CreateUser(ctx, domain.User{
		Email:       email,
		Credentials: domain.LocalCredentials(passwordHash),
	})
}

func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (domain.User, string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if !u.Credentials.HasPassword() {
		return domain.User{}, "", domain.ErrPasswordNotSet
	}

	ok, err := auth.VerifyPassword(u.Credentials.PasswordHash, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	sessID, err := s.StartSession(ctx, u.ID, ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, sessID, nil
}

// LoginWithProvider signs in a verified Google identity. In login mode an
// unknown identity is rejected; in signup mode it becomes a new OAuth-only
// account unless the email already belongs to someone else.
func (s *AuthService) LoginWithProvider(ctx context.Context, mode auth.OAuthMode, identity auth.ExternalTokenClaims, ip, userAgent string) (domain.User, string, error) {
	if identity.Subject == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	u, err := s.Users.GetUserByGoogleID(ctx, identity.Subject)
	switch {
	case err == nil:
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, "", err
	case mode != auth.OAuthSignup:
		return domain.User{}, "", domain.ErrAccountNotRegistered
	default:
		u, err = s.signupWithProvider(ctx, identity)
		if err != nil {
			return domain.User{}, "", err
		}
	}

	sessID, err := s.StartSession(ctx, u.ID, ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, sessID, nil
}

func (s *AuthService) signupWithProvider(ctx context.Context, identity auth.ExternalTokenClaims) (domain.User, error) {
	email := NormalizeEmail(identity.Email)
	if !identity.EmailVerified || !ValidEmail(email) {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	_, err := s.Users.GetUserByEmail(ctx, email)
	if err == nil {
		return domain.User{}, domain.ErrEmailTaken
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	u, err := s.Users.CreateUser(ctx, domain.User{
		Email:       email,
		Name:        identity.Name,
		Credentials: domain.OAuthCredentials(identity.Subject),
	})
	if errors.Is(err, domain.ErrProviderAccountExists) {
		// Lost a race with a concurrent signup for the same identity.
		return s.Users.GetUserByGoogleID(ctx, identity.Subject)
	}
	return u, err
}

func (s *AuthService) StartSession(ctx context.Context, userID, ip, userAgent string) (string, error) {
	return s.Sessions.CreateSession(ctx, userID, s.now().Add(s.SessionTTL), ip, userAgent)
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.Sessions.RevokeSession(ctx, sessionID, s.now())
}

func (s *AuthService) GetUserForSession(ctx context.Context, sessionID string) (domain.User, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}

	u, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) hash(password string) (string, error) {
	if s.HashPassword != nil {
		return s.HashPassword(password)
	}
	return auth.HashPassword(password)
}

func NormalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func ValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	_, domainPart, ok := strings.Cut(s, "@")
	return ok && strings.Contains(domainPart, ".")
}

func passwordProblem(password string) string {
	switch {
	case len(password) < minPasswordLen:
		return "must be at least 6 characters"
	case len(password) > auth.MaxPasswordBytes:
		return "must be at most 72 bytes"
	}
	return ""
}
