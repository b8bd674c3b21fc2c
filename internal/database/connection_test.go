package database

import (
	"database/sql"
	"testing"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "mailbeacon",
		Password: "secret",
		DBName:   "mailbeacon",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.internal port=5433 user=mailbeacon password=secret dbname=mailbeacon sslmode=require", DSN(cfg, cfg.DBName))
	assert.Contains(t, DSN(cfg, "postgres"), "dbname=postgres")
}

func TestNewMigrationManager(t *testing.T) {
	m := NewMigrationManager(config.DatabaseConfig{MigrationsPath: "migrations"}, nil)
	assert.Equal(t, "migrations", m.cfg.MigrationsPath)
}

func TestGetConnectionStats(t *testing.T) {
	// sql.Open does not dial, so the pool starts empty
	sqlDB, err := sql.Open("postgres", DSN(config.DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}, "mailbeacon"))
	require.NoError(t, err)
	db := &DB{sqlDB}
	defer db.Close()

	stats := db.GetConnectionStats()
	assert.Zero(t, stats.OpenConnections)
	assert.Zero(t, stats.InUse)
}
