package service

import (
	"context"
	"log/slog"
	"time"

	"BookSnippetCollector/internal/domain"
)

type AccountUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type AccountSnippetsStore interface {
	ListSnippetAssetIDs(ctx context.Context, ownerID string) ([]string, error)
	DeleteUserSnippets(ctx context.Context, ownerID string) error
}

type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string, when time.Time) error
}

type AssetRemover interface {
	DetachAll(ctx context.Context, assetIDs []string)
}

type AccountService struct {
	Users    AccountUsersStore
	Snippets AccountSnippetsStore
	Sessions SessionRevoker
	Media    AssetRemover
	Now      func() time.Time
	Logger   *slog.Logger
}

// Delete removes the account in order: remote images, snippets, the user,
// then every session. The steps are not transactional; calling Delete again
// after a partial failure finishes the job.
func (s *AccountService) Delete(ctx context.Context, userID string) error {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	assets, err := s.Snippets.ListSnippetAssetIDs(ctx, userID)
	if err != nil {
		return err
	}
	if u.ProfileImage != nil && u.ProfileImage.AssetID != "" {
		assets = append(assets, u.ProfileImage.AssetID)
	}
	if s.Media != nil {
		s.Media.DetachAll(ctx, assets)
	}

	if err := s.Snippets.DeleteUserSnippets(ctx, userID); err != nil {
		return err
	}
	if err := s.Users.DeleteUser(ctx, userID); err != nil {
		return err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := s.Sessions.RevokeUserSessions(ctx, userID, now()); err != nil {
		// Sessions of a deleted user no longer resolve to an account.
		s.logger().Warn("revoke sessions after account deletion failed", "user_id", userID, "err", err)
	}
	s.logger().Info("account deleted", "user_id", userID, "assets", len(assets))
	return nil
}

func (s *AccountService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
