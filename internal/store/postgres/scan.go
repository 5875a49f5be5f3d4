package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"BookSnippetCollector/internal/domain"
)

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func textOrEmpty(t pgtype.Text) string {
	if t.Valid {
		return t.String
	}
	return ""
}

func uuidOrEmpty(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func imageRefOrNil(url, assetID pgtype.Text) *domain.ImageRef {
	if !url.Valid || url.String == "" {
		return nil
	}
	return &domain.ImageRef{URL: url.String, AssetID: textOrEmpty(assetID)}
}

func imageColumns(img *domain.ImageRef) (any, any) {
	if img == nil {
		return nil, nil
	}
	return img.URL, nullIfEmpty(img.AssetID)
}
