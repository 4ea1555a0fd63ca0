package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DriverMySQL, cfg.Store.Driver)
	assert.Equal(t, "optimistic", cfg.Updater.Strategy)
	assert.Equal(t, usecase.DefaultMaxAttempts, cfg.Updater.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ":50051", cfg.GRPC.Addr)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
postgres:
  host: db
  user: ledger
  dbname: accounts
  lock_timeout: 5s
redis:
  addrs: ["cache-1:6379", "cache-2:6379"]
updater:
  strategy: pessimistic
  max_attempts: 100
cache:
  ttl: 1h
grpc:
  addr: ":6000"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 5*time.Second, cfg.Postgres.LockTimeout)
	assert.Equal(t, []string{"cache-1:6379", "cache-2:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "pessimistic", cfg.Updater.Strategy)
	assert.Equal(t, 100, cfg.Updater.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ":6000", cfg.GRPC.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "unknown store driver")

	_, err = Load(writeConfig(t, "updater:\n  strategy: lmax\n"))
	assert.ErrorContains(t, err, "unknown updater strategy")

	_, err = Load(writeConfig(t, "cache:\n  ttl: 10ms\n"))
	assert.ErrorContains(t, err, "cache.ttl")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestRepositoryConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, cfg.Store.Driver)
}
