// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first when present (local
// development); variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is every setting the server reads at startup.
type Config struct {
	Port   int
	DBPath string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenURL     string // empty = Google's production endpoint
	GoogleUserInfoURL  string
	FacebookGraphURL   string
	ProviderTimeout    time.Duration

	CORSAllowedOrigins []string

	MediaDir      string
	PublicBaseURL string

	MinioEndpoint  string // avatars go to MinIO when set, else to MediaDir
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string
	MinioRegion    string

	LogLevel slog.Level
}

// UseMinio reports whether avatars should be stored in object storage.
func (c *Config) UseMinio() bool {
	return c.MinioEndpoint != ""
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Invalid values are errors rather than
// silently falling back to defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:   p.int("PORT", 8080),
		DBPath: p.str("DB_PATH", "data/jamspace.db"),

		JWTSecret:       getenv("JWT_SECRET"),
		AccessTokenTTL:  p.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: p.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		GoogleClientID:     getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET"),
		GoogleTokenURL:     getenv("GOOGLE_TOKEN_URL"),
		GoogleUserInfoURL:  getenv("GOOGLE_USERINFO_URL"),
		FacebookGraphURL:   getenv("FACEBOOK_GRAPH_URL"),
		ProviderTimeout:    p.duration("PROVIDER_TIMEOUT", 10*time.Second),

		CORSAllowedOrigins: p.list("CORS_ALLOWED_ORIGINS", []string{"*"}),

		MediaDir: p.str("MEDIA_DIR", "data/media"),

		MinioEndpoint:  getenv("MINIO_ENDPOINT"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY"),
		MinioBucket:    p.str("MINIO_BUCKET", "avatars"),
		MinioUseSSL:    p.bool("MINIO_USE_SSL", false),
		MinioPublicURL: getenv("MINIO_PUBLIC_URL"),
		MinioRegion:    getenv("MINIO_REGION"),

		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),
	}
	cfg.PublicBaseURL = strings.TrimRight(p.str("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be set and at least 16 characters (try: openssl rand -hex 32)")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ProviderTimeout <= 0 {
		return errors.New("ACCESS_TOKEN_TTL, REFRESH_TOKEN_TTL and PROVIDER_TIMEOUT must be positive")
	}
	if c.UseMinio() && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

// parser collects every bad value so startup reports them all at once.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	switch v := strings.ToLower(strings.TrimSpace(p.getenv(key))); v {
	case "":
		return def
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		p.errs = append(p.errs, fmt.Errorf("%s: unknown level %q", key, v))
		return def
	}
}
