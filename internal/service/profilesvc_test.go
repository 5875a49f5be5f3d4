package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/media"
	"BookSnippetCollector/internal/store/memory"
)

type stubImageReplacer struct {
	t *testing.T

	replaceFunc func(context.Context, string, string, media.Upload, func(domain.ImageRef) error) (domain.ImageRef, error)
}

func (s *stubImageReplacer) Replace(ctx context.Context, folder, oldAssetID string, up media.Upload, commit func(domain.ImageRef) error) (domain.ImageRef, error) {
	if s.replaceFunc != nil {
		return s.replaceFunc(ctx, folder, oldAssetID, up, commit)
	}
	s.t.Fatalf("Replace called unexpectedly")
	return domain.ImageRef{}, errors.New("unexpected call")
}

func strPtr(s string) *string { return &s }

func newProfileFixture(t *testing.T) (*memory.Store, domain.User) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), domain.User{
		Email: "reader@example.com", Name: "Old", Bio: "old bio",
		Credentials: domain.LocalCredentials("h"),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return store, u
}

func TestProfileServiceUpdateTextFields(t *testing.T) {
	store, u := newProfileFixture(t)
	svc := &ProfileService{Store: store, Media: &stubImageReplacer{t: t}}

	got, err := svc.Update(context.Background(), u.ID, ProfileChanges{Name: strPtr("  New Name ")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "New Name" || got.Bio != "old bio" {
		t.Fatalf("expected only name changed, got %+v", got)
	}
}

func TestProfileServiceBioTooLongWritesNothing(t *testing.T) {
	store, u := newProfileFixture(t)
	svc := &ProfileService{Store: store, Media: &stubImageReplacer{t: t}}

	_, err := svc.Update(context.Background(), u.ID, ProfileChanges{
		Name:    strPtr("New"),
		Bio:     strPtr(strings.Repeat("b", 251)),
		Picture: &media.Upload{Body: strings.NewReader("png")},
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["bio"] == "" {
		t.Fatalf("expected bio validation error, got %v", err)
	}

	after, _ := store.GetUserByID(context.Background(), u.ID)
	if after.Name != "Old" {
		t.Fatalf("expected no change, got %+v", after)
	}
}

func TestProfileServiceBioAtLimit(t *testing.T) {
	store, u := newProfileFixture(t)
	svc := &ProfileService{Store: store}

	bio := strings.Repeat("é", 250)
	got, err := svc.Update(context.Background(), u.ID, ProfileChanges{Bio: &bio})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Bio != bio {
		t.Fatalf("bio not stored")
	}
}

func TestProfileServiceReplacesPicture(t *testing.T) {
	store, u := newProfileFixture(t)
	ctx := context.Background()
	if _, err := store.SetProfileImage(ctx, u.ID, domain.ImageRef{URL: "old-url", AssetID: "profiles/old.png"}); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	replacer := &stubImageReplacer{
		t: t,
		replaceFunc: func(_ context.Context, folder, oldAssetID string, _ media.Upload, commit func(domain.ImageRef) error) (domain.ImageRef, error) {
			if folder != "profiles" || oldAssetID != "profiles/old.png" {
				t.Fatalf("unexpected replace args: %s %s", folder, oldAssetID)
			}
			ref := domain.ImageRef{URL: "new-url", AssetID: "profiles/new.png"}
			return ref, commit(ref)
		},
	}
	svc := &ProfileService{Store: store, Media: replacer}

	got, err := svc.Update(ctx, u.ID, ProfileChanges{
		Bio:     strPtr("new bio"),
		Picture: &media.Upload{Field: "profilePicture", Body: strings.NewReader("png")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ProfileImage == nil || got.ProfileImage.URL != "new-url" || got.Bio != "new bio" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestProfileServicePictureUploadFailureKeepsOldPicture(t *testing.T) {
	store, u := newProfileFixture(t)
	ctx := context.Background()
	if _, err := store.SetProfileImage(ctx, u.ID, domain.ImageRef{URL: "old-url", AssetID: "profiles/old.png"}); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	replacer := &stubImageReplacer{
		t: t,
		replaceFunc: func(context.Context, string, string, media.Upload, func(domain.ImageRef) error) (domain.ImageRef, error) {
			return domain.ImageRef{}, domain.ErrUpstream
		},
	}
	svc := &ProfileService{Store: store, Media: replacer}

	_, err := svc.Update(ctx, u.ID, ProfileChanges{Picture: &media.Upload{Body: strings.NewReader("png")}})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	after, _ := store.GetUserByID(ctx, u.ID)
	if after.ProfileImage == nil || after.ProfileImage.URL != "old-url" {
		t.Fatalf("old picture lost: %+v", after.ProfileImage)
	}
}
