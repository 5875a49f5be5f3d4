package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"BookSnippetCollector/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userColumns = `id, email, password_hash, google_id, name, bio,
	profile_image_url, profile_image_asset_id, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u            domain.User
		idUUID       pgtype.UUID
		passwordHash pgtype.Text
		googleID     pgtype.Text
		imageURL     pgtype.Text
		imageAsset   pgtype.Text
	)
	err := row.Scan(
		&idUUID,
		&u.Email,
		&passwordHash,
		&googleID,
		&u.Name,
		&u.Bio,
		&imageURL,
		&imageAsset,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	creds, err := domain.NewCredentials(textOrEmpty(passwordHash), textOrEmpty(googleID))
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", uuidOrEmpty(idUUID), err)
	}
	u.ID = uuidOrEmpty(idUUID)
	u.Credentials = creds
	u.ProfileImage = imageRefOrNil(imageURL, imageAsset)
	return u, nil
}

func (s *UsersStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	const q = `
		INSERT INTO users (email, password_hash, google_id, name, bio)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	created, err := scanUser(s.pool.QueryRow(ctx, q,
		strings.ToLower(u.Email),
		nullIfEmpty(u.Credentials.PasswordHash),
		nullIfEmpty(u.Credentials.GoogleID),
		u.Name,
		u.Bio,
	))
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}
	return created, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getUser(ctx, "get user by id", q, id)
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return s.getUser(ctx, "get user by email", q, email)
}

func (s *UsersStore) GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1`
	return s.getUser(ctx, "get user by google id", q, googleID)
}

func (s *UsersStore) getUser(ctx context.Context, op, q string, arg any) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *UsersStore) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (domain.User, error) {
	const q = `
		UPDATE users
		SET name = COALESCE($2, name),
		    bio = COALESCE($3, bio),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, upd.Name, upd.Bio))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (s *UsersStore) SetProfileImage(ctx context.Context, userID string, img domain.ImageRef) (domain.User, error) {
	const q = `
		UPDATE users
		SET profile_image_url = $2,
		    profile_image_asset_id = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, img.URL, nullIfEmpty(img.AssetID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("set profile image: %w", err)
	}
	return u, nil
}

func (s *UsersStore) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapUserWriteError(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_email_uq":
			return domain.ErrEmailTaken
		case "users_google_id_uq":
			return domain.ErrProviderAccountExists
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}
