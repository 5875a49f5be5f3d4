package service

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/media"
)

const (
	profileImageFolder = "profiles"
	maxNameLen         = 80
	maxBioLen          = 250
)

type ProfileStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (domain.User, error)
	SetProfileImage(ctx context.Context, userID string, img domain.ImageRef) (domain.User, error)
}

type ImageReplacer interface {
	Replace(ctx context.Context, folder, oldAssetID string, up media.Upload, commit func(domain.ImageRef) error) (domain.ImageRef, error)
}

type ProfileChanges struct {
	Name    *string
	Bio     *string
	Picture *media.Upload
}

type ProfileService struct {
	Store ProfileStore
	Media ImageReplacer
}

// Update applies name, bio and picture changes. Text fields are validated
// before the picture is uploaded, and nothing is written if they fail.
func (s *ProfileService) Update(ctx context.Context, userID string, ch ProfileChanges) (domain.User, error) {
	upd := domain.ProfileUpdate{}
	fields := map[string]string{}
	if ch.Name != nil {
		name := strings.TrimSpace(*ch.Name)
		switch {
		case utf8.RuneCountInString(name) > maxNameLen:
			fields["name"] = "must be 80 characters or less"
		case strings.IndexFunc(name, unicode.IsControl) >= 0:
			fields["name"] = "contains invalid characters"
		}
		upd.Name = &name
	}
	if ch.Bio != nil {
		bio := strings.TrimSpace(*ch.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			fields["bio"] = "cannot be more than 250 characters"
		}
		upd.Bio = &bio
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	current, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if ch.Picture != nil {
		if s.Media == nil {
			return domain.User{}, domain.ErrUpstream
		}
		oldAsset := ""
		if current.ProfileImage != nil {
			oldAsset = current.ProfileImage.AssetID
		}
		_, err := s.Media.Replace(ctx, profileImageFolder, oldAsset, *ch.Picture, func(ref domain.ImageRef) error {
			u, err := s.Store.SetProfileImage(ctx, userID, ref)
			if err == nil {
				current = u
			}
			return err
		})
		if err != nil {
			return domain.User{}, err
		}
	}

	if upd.Name == nil && upd.Bio == nil {
		return current, nil
	}
	return s.Store.UpdateProfile(ctx, userID, upd)
}
