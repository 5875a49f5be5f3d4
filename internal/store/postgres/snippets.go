package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"BookSnippetCollector/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SnippetsStore struct {
	pool *pgxpool.Pool
}

func NewSnippetsStore(pool *pgxpool.Pool) *SnippetsStore {
	return &SnippetsStore{pool: pool}
}

const snippetColumns = `id, user_id, text, emotion, author, book_name, page_no, description,
	image_url, image_asset_id, created_at`

func scanSnippet(row pgx.Row) (domain.Snippet, error) {
	var (
		sn         domain.Snippet
		idUUID     pgtype.UUID
		userUUID   pgtype.UUID
		emotion    string
		imageURL   pgtype.Text
		imageAsset pgtype.Text
	)
	err := row.Scan(
		&idUUID,
		&userUUID,
		&sn.Text,
		&emotion,
		&sn.Author,
		&sn.BookName,
		&sn.PageNo,
		&sn.Description,
		&imageURL,
		&imageAsset,
		&sn.CreatedAt,
	)
	if err != nil {
		return domain.Snippet{}, err
	}
	sn.ID = uuidOrEmpty(idUUID)
	sn.UserID = uuidOrEmpty(userUUID)
	sn.Emotion = domain.Emotion(emotion)
	sn.Image = imageRefOrNil(imageURL, imageAsset)
	return sn, nil
}

func (s *SnippetsStore) CreateSnippet(ctx context.Context, sn domain.Snippet) (domain.Snippet, error) {
	const q = `
		INSERT INTO snippets (user_id, text, emotion, author, book_name, page_no, description, image_url, image_asset_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + snippetColumns

	imageURL, imageAsset := imageColumns(sn.Image)
	created, err := scanSnippet(s.pool.QueryRow(ctx, q,
		sn.UserID,
		sn.Text,
		string(sn.Emotion),
		sn.Author,
		sn.BookName,
		sn.PageNo,
		sn.Description,
		imageURL,
		imageAsset,
	))
	if err != nil {
		return domain.Snippet{}, fmt.Errorf("create snippet: %w", err)
	}
	return created, nil
}

func (s *SnippetsStore) ListSnippets(ctx context.Context, ownerID string, f domain.SnippetFilter) ([]domain.Snippet, error) {
	q, args := buildSnippetQuery(ownerID, f)
	rows, err := s.pool.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("list snippets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Snippet, 0)
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snippets: %w", err)
	}
	return out, nil
}

func (s *SnippetsStore) CountSnippets(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM snippets WHERE user_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snippets: %w", err)
	}
	return n, nil
}

// SnippetAt returns the owner's snippet at offset in creation order.
func (s *SnippetsStore) SnippetAt(ctx context.Context, ownerID string, offset int) (domain.Snippet, error) {
	q := `SELECT ` + snippetColumns + `
		FROM snippets
		WHERE user_id = $1
		ORDER BY created_at, id
		OFFSET $2
		LIMIT 1`

	sn, err := scanSnippet(s.pool.QueryRow(ctx, q, ownerID, offset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snippet{}, domain.ErrNotFound
		}
		return domain.Snippet{}, fmt.Errorf("snippet at offset: %w", err)
	}
	return sn, nil
}

func (s *SnippetsStore) ListSnippetAssetIDs(ctx context.Context, ownerID string) ([]string, error) {
	const q = `
		SELECT image_asset_id
		FROM snippets
		WHERE user_id = $1 AND image_asset_id IS NOT NULL
	`
	rows, err := s.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list snippet assets: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list snippet assets: %w", err)
	}
	return ids, nil
}

func (s *SnippetsStore) DeleteUserSnippets(ctx context.Context, ownerID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snippets WHERE user_id = $1`, ownerID); err != nil {
		return fmt.Errorf("delete snippets: %w", err)
	}
	return nil
}

// buildSnippetQuery compiles a filter into a parameterized query. Every
// query is scoped to ownerID.
func buildSnippetQuery(ownerID string, f domain.SnippetFilter) (string, pgx.NamedArgs) {
	var b strings.Builder
	args := pgx.NamedArgs{"owner": ownerID}

	b.WriteString(`SELECT ` + snippetColumns + ` FROM snippets WHERE user_id = @owner`)
	if f.Emotion != "" {
		b.WriteString(` AND emotion = @emotion`)
		args["emotion"] = string(f.Emotion)
	}
	if f.HasImage != nil {
		if *f.HasImage {
			b.WriteString(` AND image_url IS NOT NULL`)
		} else {
			b.WriteString(` AND image_url IS NULL`)
		}
	}
	if f.Search != "" {
		b.WriteString(` AND (text ILIKE @search OR author ILIKE @search OR book_name ILIKE @search)`)
		args["search"] = "%" + escapeLike(f.Search) + "%"
	}
	if f.SortOrder() == domain.SortAsc {
		b.WriteString(` ORDER BY created_at ASC, id ASC`)
	} else {
		b.WriteString(` ORDER BY created_at DESC, id DESC`)
	}
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
