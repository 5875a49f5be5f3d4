package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"BookSnippetCollector/internal/auth"
	"BookSnippetCollector/internal/config"
	"BookSnippetCollector/internal/email"
	"BookSnippetCollector/internal/httpapi"
	"BookSnippetCollector/internal/media"
	"BookSnippetCollector/internal/service"
	"BookSnippetCollector/internal/storage"
	"BookSnippetCollector/internal/store/memory"
	"BookSnippetCollector/internal/store/postgres"
	redisstore "BookSnippetCollector/internal/store/redis"
)

type userStore interface {
	service.UsersStore
	service.ResetUsersStore
	service.ProfileStore
	service.AccountUsersStore
}

type snippetStore interface {
	service.SnippetsStore
	service.AccountSnippetsStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	var (
		users    userStore
		snippets snippetStore
		sessions service.SessionsStore
		dbPing   func(context.Context) error
	)

	if cfg.DBDSN != "" {
		pool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		users = postgres.NewUsersStore(pool)
		snippets = postgres.NewSnippetsStore(pool)
		sessions = postgres.NewSessionsStore(pool)
		dbPing = pool.Ping
	} else {
		logger.Warn("APP_DB_DSN not set; using in-memory store, data is lost on restart")
		mem := memory.New()
		users, snippets, sessions = mem, mem, mem
		dbPing = mem.Ping
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis open: %w", err)
		}
		defer client.Close()
		sessions = redisstore.NewSessionsStore(client)
		logger.Info("sessions stored in redis")
	}

	objects, diskMedia, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return err
	}
	mediaSvc := media.NewService(objects, logger)

	authSvc := &service.AuthService{
		Users:      users,
		Sessions:   sessions,
		SessionTTL: cfg.SessionTTL,
	}
	resetSvc := &service.PasswordResetService{
		Users:       users,
		Sessions:    authSvc,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	}
	if mailer := newMailer(cfg); mailer != nil {
		resetSvc.Mailer = &service.EmailService{Mailer: mailer, FromEmail: cfg.Mail.From, FromName: cfg.Mail.FromName}
	} else {
		logger.Warn("no mail transport configured; password reset emails are disabled")
	}

	var google *auth.GoogleOAuth
	if cfg.Google.Enabled() {
		google = auth.NewGoogleOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.BaseURL(), []byte(cfg.CookieSecret))
	} else {
		logger.Info("google sign-in disabled")
	}

	cookies := auth.NewSessionCookies([]byte(cfg.CookieSecret), cfg.SessionTTL, cfg.CookieSecure())
	cookies.CrossSite = len(cfg.CORSOrigins) > 0

	opts := httpapi.RouterOpts{
		Logger:   logger,
		IsProd:   cfg.IsProd(),
		DBPing:   dbPing,
		Auth:     authSvc,
		Reset:    resetSvc,
		Snippets: &service.SnippetService{Store: snippets, Media: mediaSvc, Logger: logger},
		Profile:  &service.ProfileService{Store: users, Media: mediaSvc},
		Account: &service.AccountService{
			Users:    users,
			Snippets: snippets,
			Sessions: sessions,
			Media:    mediaSvc,
			Logger:   logger,
		},
		Google:         google,
		Cookies:        cookies,
		FrontendURL:    cfg.FrontendURL,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		FrontendDir:    cfg.FrontendDir,
	}
	if diskMedia != nil {
		opts.MediaPrefix = storage.DiskPrefix
		opts.Media = diskMedia.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// newObjectStorage picks S3 when a bucket is configured and falls back to
// the local disk otherwise. The disk backend is returned separately so its
// files can be served.
func newObjectStorage(ctx context.Context, cfg config.Config) (media.Storage, *storage.Disk, error) {
	if cfg.S3.Enabled() {
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	}

	disk, err := storage.NewDisk(cfg.MediaDir, cfg.BaseURL())
	if err != nil {
		return nil, nil, err
	}
	return disk, disk, nil
}

func newMailer(cfg config.Config) email.Mailer {
	switch {
	case cfg.Mail.SendGridAPIKey != "":
		return email.NewSendGridMailer(cfg.Mail.SendGridAPIKey)
	case cfg.Mail.SMTPHost != "":
		return email.NewSMTPMailer(email.SMTPSettings{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			TLSMode:  cfg.Mail.SMTPTLSMode,
		})
	}
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
