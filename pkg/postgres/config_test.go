package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "ledger", Password: "p@ss", DBName: "accounts", SSLMode: "disable"}
	assert.Equal(t, "postgres://ledger:p%40ss@db:5433/accounts?sslmode=disable", cfg.DSN())
}

func TestPoolConfig(t *testing.T) {
	cfg := Config{Host: "localhost", User: "ledger", Password: "secret", DBName: "accounts"}
	cfg.ApplyDefaults()

	poolCfg, err := PoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(100), poolCfg.MaxConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolCfg.ConnConfig.Port)
	assert.Equal(t, "50000", poolCfg.ConnConfig.RuntimeParams["lock_timeout"])
}
