package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

const testSecret = "0123456789abcdef0123"

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"JWT_SECRET": testSecret}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/jamspace.db", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "data/media", cfg.MediaDir)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.Equal(t, "avatars", cfg.MinioBucket)
	assert.False(t, cfg.UseMinio())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"JWT_SECRET":           testSecret,
		"PORT":                 "9090",
		"ACCESS_TOKEN_TTL":     "5m",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com, http://localhost:19006 ,",
		"PUBLIC_BASE_URL":      "https://api.example.com/",
		"MINIO_ENDPOINT":       "minio:9000",
		"MINIO_ACCESS_KEY":     "ak",
		"MINIO_SECRET_KEY":     "sk",
		"MINIO_USE_SSL":        "true",
		"MINIO_REGION":         "eu-west-1",
		"LOG_LEVEL":            "DEBUG",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:19006"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "https://api.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.UseMinio())
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, "eu-west-1", cfg.MinioRegion)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_PublicBaseURLFollowsPort(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"JWT_SECRET": testSecret, "PORT": "3000"}))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.PublicBaseURL)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":     {},
		"short secret":       {"JWT_SECRET": "short"},
		"bad port":           {"JWT_SECRET": testSecret, "PORT": "eighty"},
		"port out of range":  {"JWT_SECRET": testSecret, "PORT": "70000"},
		"bad duration":       {"JWT_SECRET": testSecret, "ACCESS_TOKEN_TTL": "forever"},
		"negative duration":  {"JWT_SECRET": testSecret, "PROVIDER_TIMEOUT": "-1s"},
		"bad bool":           {"JWT_SECRET": testSecret, "MINIO_USE_SSL": "maybe"},
		"bad log level":      {"JWT_SECRET": testSecret, "LOG_LEVEL": "loud"},
		"minio without keys": {"JWT_SECRET": testSecret, "MINIO_ENDPOINT": "minio:9000"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JWT_SECRET=from-dotenv-file-1234\nDB_PATH=/tmp/from-dotenv.db\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("DB_PATH", "/tmp/from-env.db")
	t.Setenv("JWT_SECRET", "") // restored on cleanup
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv-file-1234", cfg.JWTSecret)
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath)
}
