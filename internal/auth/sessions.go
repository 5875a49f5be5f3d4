package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const SessionCookieName = "snippets_session"

// SessionCookies issues and reads the browser cookie that carries a session
// id. The value is "<id>.<hmac>" so a client cannot mint ids of its own.
type SessionCookies struct {
	secret []byte

	TTL    time.Duration
	Secure bool
	// CrossSite sends the cookie with SameSite=None so a frontend served
	// from another origin can use it. Ignored unless Secure is set.
	CrossSite bool

	Now func() time.Time
}

func NewSessionCookies(secret []byte, ttl time.Duration, secure bool) *SessionCookies {
	return &SessionCookies{secret: append([]byte(nil), secret...), TTL: ttl, Secure: secure}
}

// Issue writes a cookie for sessionID.
func (c *SessionCookies) Issue(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.sign(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
		MaxAge:   int(c.TTL.Seconds()),
		Expires:  c.now().Add(c.TTL),
	})
}

// Read returns the session id carried by r. A missing cookie and a bad
// signature both report false.
func (c *SessionCookies) Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(SessionCookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return c.verify(ck.Value)
}

func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func (c *SessionCookies) sign(sessionID string) string {
	if len(c.secret) == 0 {
		return sessionID
	}
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(c.mac(sessionID))
}

func (c *SessionCookies) verify(value string) (string, bool) {
	if len(c.secret) == 0 {
		return value, value != ""
	}

	id, sigB64, ok := strings.Cut(value, ".")
	if !ok || id == "" || sigB64 == "" {
		return "", false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != sha256.Size {
		return "", false
	}
	if subtle.ConstantTimeCompare(sig, c.mac(id)) != 1 {
		return "", false
	}
	return id, true
}

func (c *SessionCookies) mac(id string) []byte {
	m := hmac.New(sha256.New, c.secret)
	_, _ = m.Write([]byte(id))
	return m.Sum(nil)
}

func (c *SessionCookies) sameSite() http.SameSite {
	if c.CrossSite && c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c *SessionCookies) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
