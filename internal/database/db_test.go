package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/database/migrations"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "fiche", DBPort: "5433", DBSSLMode: "require"}
	assert.Equal(t, "host=db user=u password=p dbname=fiche port=5433 sslmode=require TimeZone=UTC", DSN(cfg))
}

func TestMigrationsEmbedded(t *testing.T) {
	raw, err := migrations.FS.ReadFile("00001_init.sql")
	require.NoError(t, err)
	sqlText := string(raw)
	assert.Contains(t, sqlText, "-- +goose Up")
	assert.Contains(t, sqlText, "CHECK (status <> 'signed' OR data IS NULL)")
	assert.Contains(t, sqlText, "CREATE UNIQUE INDEX IF NOT EXISTS idx_fiches_code")
}

func TestMigrate_RunsEmbeddedMigrations(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return errors.New("boom")
	}
	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate: boom")
}
