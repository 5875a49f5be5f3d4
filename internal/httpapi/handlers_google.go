package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"BookSnippetCollector/internal/auth"
)

// handleGoogleStart redirects the browser to Google's consent screen with a
// signed state bound to a short-lived cookie.
func (a *api) handleGoogleStart(mode auth.OAuthMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, nonce, err := a.google.AuthCodeURL(mode)
		if err != nil {
			a.logger.Error("google auth url failed", "mode", mode, "err", err)
			http.Redirect(w, r, a.googleFailureURL(mode), http.StatusFound)
			return
		}
		auth.SetOAuthStateCookie(w, nonce, a.cookies.Secure)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func (a *api) handleGoogleCallback(mode auth.OAuthMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		nonce := ""
		if c, err := r.Cookie(auth.OAuthStateCookieName); err == nil {
			nonce = c.Value
		}
		auth.ClearOAuthStateCookie(w, a.cookies.Secure)

		if errParam := q.Get("error"); errParam != "" {
			a.logger.Info("google sign-in declined", "mode", mode, "error", errParam)
			http.Redirect(w, r, a.googleFailureURL(mode), http.StatusFound)
			return
		}

		identity, err := a.google.Identify(r.Context(), mode, q.Get("state"), q.Get("code"), nonce)
		if err != nil {
			a.logger.Warn("google identity failed", "mode", mode, "err", err)
			http.Redirect(w, r, a.googleFailureURL(mode), http.StatusFound)
			return
		}

		_, sessID, err := a.authSvc.LoginWithProvider(r.Context(), mode, *identity, a.clientIP(r), r.UserAgent())
		if err != nil {
			if isServerError(err) {
				a.logger.Error("google sign-in failed", "mode", mode, "err", err)
			}
			http.Redirect(w, r, a.googleFailureURL(mode), http.StatusFound)
			return
		}

		a.setSession(w, sessID)
		http.Redirect(w, r, a.frontendURL("/dashboard", nil), http.StatusFound)
	}
}

func (a *api) googleFailureURL(mode auth.OAuthMode) string {
	if mode == auth.OAuthSignup {
		return a.frontendURL("/signup", url.Values{"error": {"google-signup-failed"}})
	}
	return a.frontendURL("/login", url.Values{"error": {"not-registered"}})
}

func (a *api) frontendURL(path string, query url.Values) string {
	out := strings.TrimRight(a.frontendBase, "/") + path
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out
}
