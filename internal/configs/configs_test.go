package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET",
	"DOCSTORE_BACKEND", "REDIS_URL", "DATABASE_URL", "FIRESTORE_PROJECT_ID",
	"S3_BUCKET_NAME", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
	"FEED_SCROLL_DEBOUNCE",
}

// clearEnv unsets every variable LoadConfig reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, BackendMemory, cfg.DocstoreBackend)
	assert.False(t, cfg.StorageEnabled())
	assert.Equal(t, 100*time.Millisecond, cfg.FeedScrollDebounce)
}

func TestLoadConfigProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DOCSTORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("S3_BUCKET_NAME", "bucket")
	t.Setenv("S3_ENDPOINT", "https://s3.example")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "key")
	t.Setenv("FEED_SCROLL_DEBOUNCE", "250ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, BackendRedis, cfg.DocstoreBackend)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.True(t, cfg.StorageEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.FeedScrollDebounce)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":              {"PORT": "http"},
		"privileged port":       {"PORT": "80"},
		"missing prod secret":   {"ENVIRONMENT": "production", "DOCSTORE_BACKEND": "redis", "REDIS_URL": "redis://x"},
		"memory in production":  {"ENVIRONMENT": "production", "JWT_SECRET": "s"},
		"missing prod database": {"ENVIRONMENT": "production", "JWT_SECRET": "s", "DOCSTORE_BACKEND": "postgres"},
		"firestore project":     {"DOCSTORE_BACKEND": "firestore"},
		"unknown backend":       {"DOCSTORE_BACKEND": "sqlite"},
		"partial s3":            {"S3_BUCKET_NAME": "bucket"},
		"bad debounce":          {"FEED_SCROLL_DEBOUNCE": "soon"},
		"negative debounce":     {"FEED_SCROLL_DEBOUNCE": "-1s"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestDevelopmentBackendDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCSTORE_BACKEND", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseDSN, "livechat")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\nDOCSTORE_BACKEND=redis\n"), 0o600))
	t.Setenv("DOCSTORE_BACKEND", "postgres")

	require.NoError(t, LoadEnvFile(path))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.DocstoreBackend)
}
