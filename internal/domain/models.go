package domain

import "time"

type CredentialKind string

const (
	CredentialsLocal CredentialKind = "local"
	CredentialsOAuth CredentialKind = "oauth"
	CredentialsBoth  CredentialKind = "both"
)

// Credentials is how a user proves who they are: a password hash, a Google
// account id, or both. The zero value is invalid; build one with
// NewCredentials so Kind always agrees with the populated fields.
type Credentials struct {
	Kind         CredentialKind
	PasswordHash string
	GoogleID     string
}

func NewCredentials(passwordHash, googleID string) (Credentials, error) {
	c := Credentials{PasswordHash: passwordHash, GoogleID: googleID}
	switch {
	case passwordHash != "" && googleID != "":
		c.Kind = CredentialsBoth
	case passwordHash != "":
		c.Kind = CredentialsLocal
	case googleID != "":
		c.Kind = CredentialsOAuth
	default:
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}

func LocalCredentials(passwordHash string) Credentials {
	return Credentials{Kind: CredentialsLocal, PasswordHash: passwordHash}
}

func OAuthCredentials(googleID string) Credentials {
	return Credentials{Kind: CredentialsOAuth, GoogleID: googleID}
}

func (c Credentials) HasPassword() bool {
	return (c.Kind == CredentialsLocal || c.Kind == CredentialsBoth) && c.PasswordHash != ""
}

func (c Credentials) HasGoogle() bool {
	return (c.Kind == CredentialsOAuth || c.Kind == CredentialsBoth) && c.GoogleID != ""
}

// WithPassword returns the credentials after a password has been set,
// keeping any linked Google account.
func (c Credentials) WithPassword(passwordHash string) Credentials {
	if c.HasGoogle() {
		return Credentials{Kind: CredentialsBoth, PasswordHash: passwordHash, GoogleID: c.GoogleID}
	}
	return LocalCredentials(passwordHash)
}

// ImageRef points at an asset on the image host. AssetID is what the host
// needs to delete it.
type ImageRef struct {
	URL     string
	AssetID string
}

type User struct {
	ID           string
	Email        string
	Name         string
	Bio          string
	ProfileImage *ImageRef
	Credentials  Credentials
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// PasswordReset is the pending reset stored on a user record. Only the
// sha256 of the emailed token is kept.
type PasswordReset struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Name *string
	Bio  *string
}
