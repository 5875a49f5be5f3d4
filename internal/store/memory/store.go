// Package memory is a process-local store used for development without a
// database and in tests. All data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"BookSnippetCollector/internal/domain"
)

type userRecord struct {
	user       domain.User
	resetHash  string
	resetUntil time.Time
}

type snippetRecord struct {
	snippet domain.Snippet
	seq     uint64
}

type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      uint64
	users    map[string]*userRecord
	sessions map[string]domain.Session
	snippets map[string]snippetRecord
}

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[string]*userRecord),
		sessions: make(map[string]domain.Session),
		snippets: make(map[string]snippetRecord),
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneImage(img *domain.ImageRef) *domain.ImageRef {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}

func cloneUser(u domain.User) domain.User {
	u.ProfileImage = cloneImage(u.ProfileImage)
	return u
}

func cloneSnippet(sn domain.Snippet) domain.Snippet {
	sn.Image = cloneImage(sn.Image)
	return sn
}

// Users.

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Email, u.Email) {
			return domain.User{}, domain.ErrEmailTaken
		}
		if u.Credentials.GoogleID != "" && rec.user.Credentials.GoogleID == u.Credentials.GoogleID {
			return domain.User{}, domain.ErrProviderAccountExists
		}
	}
	creds, err := domain.NewCredentials(u.Credentials.PasswordHash, u.Credentials.GoogleID)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now()
	u.ID = uuid.NewString()
	u.Credentials = creds
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = &userRecord{user: cloneUser(u)}
	return cloneUser(u), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return cloneUser(rec.user), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findUser(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, error) {
	if googleID == "" {
		return domain.User{}, domain.ErrNotFound
	}
	return s.findUser(func(u domain.User) bool { return u.Credentials.GoogleID == googleID })
}

func (s *Store) findUser(match func(domain.User) bool) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if match(rec.user) {
			return cloneUser(rec.user), nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (domain.User, error) {
	return s.mutateUser(userID, func(u *domain.User) {
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Bio != nil {
			u.Bio = *upd.Bio
		}
	})
}

func (s *Store) SetProfileImage(ctx context.Context, userID string, img domain.ImageRef) (domain.User, error) {
	return s.mutateUser(userID, func(u *domain.User) {
		u.ProfileImage = cloneImage(&img)
	})
}

func (s *Store) mutateUser(userID string, fn func(*domain.User)) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	fn(&rec.user)
	rec.user.UpdatedAt = s.now()
	return cloneUser(rec.user), nil
}

func (s *Store) SetResetToken(ctx context.Context, reset domain.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[reset.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.resetHash = reset.TokenHash
	rec.resetUntil = reset.ExpiresAt
	return nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokenHash == "" {
		return domain.User{}, domain.ErrNotFound
	}
	for _, rec := range s.users {
		if rec.resetHash != tokenHash || !rec.resetUntil.After(now) {
			continue
		}
		rec.user.Credentials = rec.user.Credentials.WithPassword(passwordHash)
		rec.user.UpdatedAt = s.now()
		rec.resetHash = ""
		rec.resetUntil = time.Time{}
		return cloneUser(rec.user), nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.users, userID)
	for id, rec := range s.snippets {
		if rec.snippet.UserID == userID {
			delete(s.snippets, id)
		}
	}
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Sessions.

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.sessions[id] = domain.Session{ID: id, UserID: userID, CreatedAt: s.now(), ExpiresAt: expiresAt}
	return id, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.RevokedAt != nil || !sess.ExpiresAt.After(s.now()) {
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	sess.RevokedAt = &when
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			t := when
			sess.RevokedAt = &t
			s.sessions[id] = sess
		}
	}
	return nil
}

// Snippets.

func (s *Store) CreateSnippet(ctx context.Context, sn domain.Snippet) (domain.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	sn.ID = uuid.NewString()
	sn.CreatedAt = s.now()
	sn.Image = cloneImage(sn.Image)
	s.snippets[sn.ID] = snippetRecord{snippet: sn, seq: s.seq}
	return cloneSnippet(sn), nil
}

func (s *Store) ListSnippets(ctx context.Context, ownerID string, f domain.SnippetFilter) ([]domain.Snippet, error) {
	recs := s.ownedSnippets(ownerID, f.Matches)
	if f.SortOrder() == domain.SortDesc {
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
	}
	out := make([]domain.Snippet, 0, len(recs))
	for _, r := range recs {
		out = append(out, cloneSnippet(r.snippet))
	}
	return out, nil
}

func (s *Store) CountSnippets(ctx context.Context, ownerID string) (int, error) {
	return len(s.ownedSnippets(ownerID, nil)), nil
}

func (s *Store) SnippetAt(ctx context.Context, ownerID string, offset int) (domain.Snippet, error) {
	recs := s.ownedSnippets(ownerID, nil)
	if offset < 0 || offset >= len(recs) {
		return domain.Snippet{}, domain.ErrNotFound
	}
	return cloneSnippet(recs[offset].snippet), nil
}

func (s *Store) ListSnippetAssetIDs(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	for _, r := range s.ownedSnippets(ownerID, nil) {
		if r.snippet.Image != nil && r.snippet.Image.AssetID != "" {
			ids = append(ids, r.snippet.Image.AssetID)
		}
	}
	return ids, nil
}

func (s *Store) DeleteUserSnippets(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.snippets {
		if rec.snippet.UserID == ownerID {
			delete(s.snippets, id)
		}
	}
	return nil
}

// ownedSnippets returns the owner's snippets in ascending creation order.
func (s *Store) ownedSnippets(ownerID string, match func(domain.Snippet) bool) []snippetRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []snippetRecord
	for _, rec := range s.snippets {
		if rec.snippet.UserID != ownerID {
			continue
		}
		if match != nil && !match(rec.snippet) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.snippet.CreatedAt.Equal(b.snippet.CreatedAt) {
			return a.snippet.CreatedAt.Before(b.snippet.CreatedAt)
		}
		return a.seq < b.seq
	})
	return out
}

// Ping reports the store as healthy.
func (s *Store) Ping(ctx context.Context) error { return nil }
