package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"BookSnippetCollector/internal/auth"
	"BookSnippetCollector/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth     *service.AuthService
	Reset    *service.PasswordResetService
	Snippets *service.SnippetService
	Profile  *service.ProfileService
	Account  *service.AccountService
	Google   *auth.GoogleOAuth

	Cookies *auth.SessionCookies

	FrontendURL    string
	CORSOrigins    []string
	TrustedProxies []netip.Prefix

	// MediaPrefix and Media serve locally stored images when set.
	MediaPrefix string
	Media       http.Handler
	FrontendDir string
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:         logger,
		isProd:         opts.IsProd,
		dbPing:         opts.DBPing,
		authSvc:        opts.Auth,
		resetSvc:       opts.Reset,
		snippetSvc:     opts.Snippets,
		profileSvc:     opts.Profile,
		accountSvc:     opts.Account,
		google:         opts.Google,
		cookies:        opts.Cookies,
		frontendBase:   opts.FrontendURL,
		trustedProxies: opts.TrustedProxies,
		loginLimiter:   newLoginLimiter(),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Media != nil && opts.MediaPrefix != "" {
		publicMux.Handle("GET "+opts.MediaPrefix, opts.Media)
	}
	if opts.FrontendDir != "" {
		publicMux.Handle("GET /", newSPAHandler(opts.FrontendDir))
	} else {
		publicMux.HandleFunc("GET /", handleLanding)
	}

	if api.authSvc == nil {
		apiMux.HandleFunc("POST /api/auth/register", handleNotImplemented)
		apiMux.HandleFunc("POST /api/auth/login", handleNotImplemented)
		apiMux.HandleFunc("GET /api/user/me", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /api/auth/register", api.handleAuthRegister)
		apiMux.HandleFunc("POST /api/auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("GET /api/auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("POST /api/auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("GET /api/user/me", api.requireAuth(api.handleUsersMe))

		if api.google != nil {
			apiMux.HandleFunc("GET /api/auth/google/login", api.handleGoogleStart(auth.OAuthLogin))
			apiMux.HandleFunc("GET /api/auth/google/signup", api.handleGoogleStart(auth.OAuthSignup))
			apiMux.HandleFunc("GET /api/auth/google/login/callback", api.handleGoogleCallback(auth.OAuthLogin))
			apiMux.HandleFunc("GET /api/auth/google/signup/callback", api.handleGoogleCallback(auth.OAuthSignup))
		} else {
			apiMux.HandleFunc("GET /api/auth/google/", handleNotImplemented)
		}

		if api.snippetSvc != nil {
			apiMux.HandleFunc("GET /api/snippets", api.requireAuth(api.handleSnippetsList))
			apiMux.HandleFunc("GET /api/snippets/random", api.requireAuth(api.handleSnippetsRandom))
			apiMux.HandleFunc("POST /api/snippets", api.requireAuth(api.handleSnippetsCreate))
		}
		if api.profileSvc != nil {
			apiMux.HandleFunc("PATCH /api/user/update-details", api.requireAuth(api.handleUsersUpdateDetails))
		}
		if api.accountSvc != nil {
			apiMux.HandleFunc("DELETE /api/user/delete-account", api.requireAuth(api.handleUsersDeleteAccount))
		}
		if api.resetSvc != nil {
			apiMux.HandleFunc("POST /api/user/forgot-password", api.handleForgotPassword)
			apiMux.HandleFunc("PATCH /api/user/reset-password/{token}", api.handleResetPassword)
		}
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler does not populate path wildcards; ServeHTTP does.
		if _, pattern := apiMux.Handler(r); pattern == "" {
			handleAPINotFound(w, r)
			return
		}
		apiMux.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = CORS(opts.CORSOrigins)(h)
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc    *service.AuthService
	resetSvc   *service.PasswordResetService
	snippetSvc *service.SnippetService
	profileSvc *service.ProfileService
	accountSvc *service.AccountService
	google     *auth.GoogleOAuth

	cookies      *auth.SessionCookies
	frontendBase string

	trustedProxies []netip.Prefix

	loginLimiter *loginLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
