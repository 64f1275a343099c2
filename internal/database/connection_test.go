package database

import (
	"testing"
	"time"

	"github.com/BradenHooton/scribe/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPoolSettings(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "db", Port: 5432, User: "scribe", Password: "pw", Name: "scribe", SSLMode: "disable",
		MaxConns: 12, MinConns: 2,
		MaxConnLifetime:   10 * time.Minute,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)

	applyPoolSettings(poolConfig, cfg)

	assert.Equal(t, int32(12), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, 10*time.Minute, poolConfig.MaxConnLifetime)
	assert.Equal(t, 30*time.Second, poolConfig.HealthCheckPeriod)
	assert.Equal(t, "UTC", poolConfig.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, "scribe", poolConfig.ConnConfig.RuntimeParams["application_name"])
}
