package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/media"
)

const snippetImageFolder = "snippets"

var snippetFieldLimits = map[string]int{
	"text":        5000,
	"author":      200,
	"bookName":    200,
	"pageNo":      20,
	"description": 2000,
}

type SnippetsStore interface {
	CreateSnippet(ctx context.Context, sn domain.Snippet) (domain.Snippet, error)
	ListSnippets(ctx context.Context, ownerID string, f domain.SnippetFilter) ([]domain.Snippet, error)
	CountSnippets(ctx context.Context, ownerID string) (int, error)
	SnippetAt(ctx context.Context, ownerID string, offset int) (domain.Snippet, error)
}

type ImageAttacher interface {
	Attach(ctx context.Context, folder string, up media.Upload) (domain.ImageRef, error)
	DetachAll(ctx context.Context, assetIDs []string)
}

type NewSnippet struct {
	Text        string
	Emotion     string
	Author      string
	BookName    string
	PageNo      string
	Description string
	Image       *media.Upload
}

type SnippetService struct {
	Store  SnippetsStore
	Media  ImageAttacher
	Logger *slog.Logger

	// Rand returns a uniform integer in [0, n).
	Rand func(n int) int
}

func (s *SnippetService) Create(ctx context.Context, ownerID string, in NewSnippet) (domain.Snippet, error) {
	sn := domain.Snippet{
		UserID:      ownerID,
		Text:        strings.TrimSpace(in.Text),
		Emotion:     domain.Emotion(strings.TrimSpace(in.Emotion)),
		Author:      strings.TrimSpace(in.Author),
		BookName:    strings.TrimSpace(in.BookName),
		PageNo:      strings.TrimSpace(in.PageNo),
		Description: strings.TrimSpace(in.Description),
	}
	if err := validateSnippet(sn); err != nil {
		return domain.Snippet{}, err
	}

	if in.Image != nil {
		if s.Media == nil {
			return domain.Snippet{}, domain.ErrUpstream
		}
		ref, err := s.Media.Attach(ctx, snippetImageFolder, *in.Image)
		if err != nil {
			return domain.Snippet{}, err
		}
		sn.Image = &ref
	}

	created, err := s.Store.CreateSnippet(ctx, sn)
	if err != nil {
		if sn.Image != nil {
			s.Media.DetachAll(ctx, []string{sn.Image.AssetID})
		}
		return domain.Snippet{}, err
	}
	return created, nil
}

func (s *SnippetService) List(ctx context.Context, ownerID string, f domain.SnippetFilter) ([]domain.Snippet, error) {
	f.Search = strings.TrimSpace(f.Search)
	switch f.Sort {
	case "", domain.SortAsc, domain.SortDesc:
	default:
		return nil, domain.NewValidationError(map[string]string{"sort": "must be asc or desc"})
	}
	return s.Store.ListSnippets(ctx, ownerID, f)
}

// PickRandom returns one of the owner's snippets chosen uniformly.
func (s *SnippetService) PickRandom(ctx context.Context, ownerID string) (domain.Snippet, error) {
	n, err := s.Store.CountSnippets(ctx, ownerID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if n == 0 {
		return domain.Snippet{}, domain.ErrNotFound
	}
	return s.Store.SnippetAt(ctx, ownerID, s.intn(n))
}

func (s *SnippetService) intn(n int) int {
	if s.Rand != nil {
		return s.Rand(n)
	}
	return rand.IntN(n)
}

func validateSnippet(sn domain.Snippet) error {
	fields := map[string]string{}
	if sn.Text == "" {
		fields["text"] = "is required"
	}
	switch {
	case sn.Emotion == "":
		fields["emotion"] = "is required"
	case !sn.Emotion.Valid():
		fields["emotion"] = "is not a known emotion"
	}
	values := map[string]string{
		"text":        sn.Text,
		"author":      sn.Author,
		"bookName":    sn.BookName,
		"pageNo":      sn.PageNo,
		"description": sn.Description,
	}
	for field, v := range values {
		if limit := snippetFieldLimits[field]; utf8.RuneCountInString(v) > limit {
			fields[field] = "is too long"
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}
