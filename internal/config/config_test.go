package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":8080"
database:
  dsn: "postgres://localhost/test"
storage:
  path: "/tmp/images"
session:
  ttl: 24h
rate_limit:
  requests_per_second: 5
  burst: 10
cors_origins:
  - "https://app.example.com"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "postgres://localhost/test", cfg.Database.DSN)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)

	// Untouched keys keep their defaults.
	assert.Equal(t, "HALOGIN-SESSION", cfg.Session.CookieName)
	assert.Equal(t, 16, cfg.Database.MaxOpenConns)
	assert.Equal(t, "voyage-large-2", cfg.Embedding.Model)
	assert.Equal(t, "0 4 * * *", cfg.Maintenance.Schedule)
}

func TestLoadRequiresDSNAndStorage(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_PATH", "")

	path := writeConfig(t, `
storage:
  path: "/tmp/images"
`)
	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")

	path = writeConfig(t, `
database:
  dsn: "postgres://localhost/test"
`)
	_, err = LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage path")
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("STORAGE_PATH", "/env/images")
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("VOYAGE_API_KEY", "vk-1")

	path := writeConfig(t, `
server:
  address: ":8080"
database:
  dsn: "postgres://file/db"
storage:
  path: "/file/images"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
	assert.Equal(t, "/env/images", cfg.Storage.Path)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "vk-1", cfg.Embedding.VoyageAPIKey)
}

func TestMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("STORAGE_PATH", "/env/images")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
}
