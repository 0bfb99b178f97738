package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/database/migrations"
)

func DSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)
}

func Connect(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if log.IsLevelEnabled(log.DebugLevel) {
		level = logger.Info
	}
	return gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
}

// gooseUp is swapped out in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded SQL migrations. The schema carries checks
// AutoMigrate cannot express, so gorm never creates tables itself.
func Migrate(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUp(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
