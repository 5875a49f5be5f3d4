package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	Addr         string
	PublicURL    *url.URL
	FrontendURL  string
	CORSOrigins  []string
	DBDSN        string
	RedisURL     string
	CookieSecret string
	SessionTTL   time.Duration
	LogLevel     string
	MediaDir     string
	FrontendDir  string

	// TrustedProxies are the peers whose X-Forwarded-For header is honored.
	TrustedProxies []netip.Prefix

	Google GoogleConfig
	Mail   MailConfig
	S3     S3Config
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

func (g GoogleConfig) Enabled() bool { return g.ClientID != "" && g.ClientSecret != "" }

type MailConfig struct {
	From           string
	FromName       string
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPTLSMode    string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Load reads an optional .env file into the process environment, then builds
// the config from it. Variables already set in the environment win.
func Load() (Config, error) {
	path := os.Getenv("APP_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := loadDotEnvFile(path, os.Setenv, os.Getenv); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(os.Getenv)
}

func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:          getenv("APP_ENV"),
		Addr:         getenv("APP_ADDR"),
		DBDSN:        getenv("APP_DB_DSN"),
		RedisURL:     getenv("APP_REDIS_URL"),
		LogLevel:     getenv("APP_LOG_LEVEL"),
		CookieSecret: getenv("APP_COOKIE_SECRET"),
		MediaDir:     getenv("APP_MEDIA_DIR"),
		FrontendDir:  getenv("APP_FRONTEND_DIR"),
		Google: GoogleConfig{
			ClientID:     strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_SECRET")),
		},
		Mail: MailConfig{
			From:           strings.TrimSpace(getenv("APP_MAIL_FROM")),
			FromName:       strings.TrimSpace(getenv("APP_MAIL_FROM_NAME")),
			SendGridAPIKey: getenv("APP_SENDGRID_API_KEY"),
			SMTPHost:       strings.TrimSpace(getenv("APP_SMTP_HOST")),
			SMTPUsername:   getenv("APP_SMTP_USERNAME"),
			SMTPPassword:   getenv("APP_SMTP_PASSWORD"),
			SMTPTLSMode:    strings.ToLower(strings.TrimSpace(getenv("APP_SMTP_TLS_MODE"))),
		},
		S3: S3Config{
			Bucket:          strings.TrimSpace(getenv("APP_S3_BUCKET")),
			Region:          strings.TrimSpace(getenv("APP_S3_REGION")),
			Endpoint:        strings.TrimSpace(getenv("APP_S3_ENDPOINT")),
			AccessKeyID:     getenv("APP_S3_ACCESS_KEY_ID"),
			SecretAccessKey: getenv("APP_S3_SECRET_ACCESS_KEY"),
			PublicURL:       strings.TrimRight(strings.TrimSpace(getenv("APP_S3_PUBLIC_URL")), "/"),
		},
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "data/media"
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = "Book Snippets"
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := parseHTTPURL("APP_PUBLIC_URL", publicURLRaw)
		if err != nil {
			return Config{}, err
		}
		cfg.PublicURL = parsed
	}

	frontendRaw := getenv("APP_FRONTEND_URL")
	if frontendRaw != "" {
		parsed, err := parseHTTPURL("APP_FRONTEND_URL", frontendRaw)
		if err != nil {
			return Config{}, err
		}
		cfg.FrontendURL = strings.TrimRight(parsed.String(), "/")
	} else if cfg.PublicURL != nil {
		cfg.FrontendURL = strings.TrimRight(cfg.PublicURL.String(), "/")
	} else {
		cfg.FrontendURL = "http://localhost:5173"
	}

	cfg.CORSOrigins = parseCSV(getenv("APP_CORS_ORIGINS"))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.FrontendURL}
	}

	proxies, err := parsePrefixes(getenv("APP_TRUSTED_PROXIES"))
	if err != nil {
		return Config{}, fmt.Errorf("APP_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	ttlRaw := getenv("APP_SESSION_TTL")
	if ttlRaw == "" {
		cfg.SessionTTL = 30 * 24 * time.Hour
	} else {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_SESSION_TTL: %w", err)
		}
		if ttl <= 0 {
			return Config{}, errors.New("APP_SESSION_TTL: must be > 0")
		}
		cfg.SessionTTL = ttl
	}

	portRaw := strings.TrimSpace(getenv("APP_SMTP_PORT"))
	if portRaw == "" {
		cfg.Mail.SMTPPort = 587
	} else {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, errors.New("APP_SMTP_PORT: must be a valid port")
		}
		cfg.Mail.SMTPPort = port
	}
	switch cfg.Mail.SMTPTLSMode {
	case "", "starttls", "tls", "none":
	default:
		return Config{}, errors.New("APP_SMTP_TLS_MODE: must be one of starttls, tls, none")
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	if (cfg.Mail.SendGridAPIKey != "" || cfg.Mail.SMTPHost != "") && cfg.Mail.From == "" {
		return Config{}, errors.New("APP_MAIL_FROM: required when a mail transport is configured")
	}

	if cfg.Google.Enabled() && cfg.CookieSecret == "" {
		return Config{}, errors.New("APP_COOKIE_SECRET: required when Google sign-in is enabled")
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.CookieSecret) < 32 {
			return Config{}, errors.New("APP_COOKIE_SECRET: must be at least 32 bytes in prod")
		}
		if !cfg.S3.Enabled() {
			return Config{}, errors.New("APP_S3_BUCKET: required in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}

// BaseURL is the public origin of the API without a trailing slash.
func (c Config) BaseURL() string {
	if c.PublicURL != nil {
		return strings.TrimRight(c.PublicURL.String(), "/")
	}
	return "http://" + c.Addr
}

func parseHTTPURL(key, raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("%s: must be an absolute URL", key)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%s: scheme must be http or https", key)
	}
	return parsed, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range parseCSV(s) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
