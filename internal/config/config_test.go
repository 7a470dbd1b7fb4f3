package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: sqlite
  dsn: /var/lib/emix/store.db
cache:
  enabled: true
  redis_addr: localhost:6379
  ttl: 15m
server:
  addr: ":9000"
  rate_limit: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/emix/store.db", cfg.Store.DSN)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 20, cfg.Server.RateBurst, "unset fields keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EMIX_STORE_BACKEND", "postgres")
	t.Setenv("EMIX_STORE_DSN", "postgres://emix@db/emix?sslmode=disable")
	t.Setenv("EMIX_CACHE_TTL", "90s")
	t.Setenv("EMIX_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://emix@db/emix?sslmode=disable", cfg.Store.DSN)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrideRejectsBadDuration(t *testing.T) {
	t.Setenv("EMIX_CACHE_TTL", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "csv"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Backend = "postgres"
	assert.Error(t, cfg.Validate(), "postgres needs a DSN")

	cfg = Default()
	cfg.Server.RateLimit = -1
	assert.Error(t, cfg.Validate())
}
