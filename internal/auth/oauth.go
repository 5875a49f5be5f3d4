package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type OAuthMode string

const (
	OAuthLogin  OAuthMode = "login"
	OAuthSignup OAuthMode = "signup"
)

const (
	OAuthStateCookieName = "snippets_oauth_state"
	oauthStateTTL        = 10 * time.Minute
)

var ErrOAuthState = errors.New("invalid oauth state")

var errNoStateSecret = errors.New("oauth state secret is not configured")

type oauthStateClaims struct {
	jwt.RegisteredClaims
	Mode  OAuthMode `json:"mode"`
	Nonce string    `json:"nonce"`
}

// GoogleOAuth runs the authorization code flow against Google. Login and
// signup use separate callback URLs so the mode survives the round trip even
// if the state is lost.
type GoogleOAuth struct {
	ClientID          string
	ClientSecret      string
	LoginRedirectURL  string
	SignupRedirectURL string
	StateSecret       []byte

	Endpoint oauth2.Endpoint
	Verify   func(ctx context.Context, idToken, audience string) (*ExternalTokenClaims, error)
	Now      func() time.Time
}

func NewGoogleOAuth(clientID, clientSecret, publicURL string, stateSecret []byte) *GoogleOAuth {
	return &GoogleOAuth{
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		LoginRedirectURL:  publicURL + "/api/auth/google/login/callback",
		SignupRedirectURL: publicURL + "/api/auth/google/signup/callback",
		StateSecret:       stateSecret,
		Endpoint:          google.Endpoint,
		Verify:            VerifyGoogleIDToken,
		Now:               time.Now,
	}
}

func (g *GoogleOAuth) config(mode OAuthMode) *oauth2.Config {
	redirect := g.LoginRedirectURL
	if mode == OAuthSignup {
		redirect = g.SignupRedirectURL
	}
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     g.Endpoint,
		RedirectURL:  redirect,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

// AuthCodeURL returns the provider URL to redirect to and the nonce the
// caller must bind to the browser (see SetOAuthStateCookie).
func (g *GoogleOAuth) AuthCodeURL(mode OAuthMode) (string, string, error) {
	if len(g.StateSecret) == 0 {
		return "", "", errNoStateSecret
	}
	nonce, err := randomToken(16)
	if err != nil {
		return "", "", err
	}
	now := g.now()
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, oauthStateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
		},
		Mode:  mode,
		Nonce: nonce,
	}).SignedString(g.StateSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign oauth state: %w", err)
	}
	return g.config(mode).AuthCodeURL(state, oauth2.AccessTypeOnline), nonce, nil
}

// Identify validates the callback state against the nonce cookie, exchanges
// the code and verifies the returned id token.
func (g *GoogleOAuth) Identify(ctx context.Context, mode OAuthMode, state, code, nonce string) (*ExternalTokenClaims, error) {
	if err := g.checkState(mode, state, nonce); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	tok, err := g.config(mode).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, errors.New("token response has no id_token")
	}
	claims, err := g.Verify(ctx, rawID, g.ClientID)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("id token missing subject or email")
	}
	return claims, nil
}

func (g *GoogleOAuth) checkState(mode OAuthMode, state, nonce string) error {
	if state == "" || nonce == "" || len(g.StateSecret) == 0 {
		return ErrOAuthState
	}
	claims := &oauthStateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		return g.StateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return ErrOAuthState
	}
	if claims.Mode != mode {
		return ErrOAuthState
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(nonce)) != 1 {
		return ErrOAuthState
	}
	return nil
}

func (g *GoogleOAuth) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func SetOAuthStateCookie(w http.ResponseWriter, nonce string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    nonce,
		Path:     "/api/auth/google",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateTTL.Seconds()),
	})
}

func ClearOAuthStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    "",
		Path:     "/api/auth/google",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
