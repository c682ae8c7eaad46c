package database_service

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending schema migrations and returns the resulting version.
func (db *DB) Migrate(ctx context.Context) (int64, error) {
	sqlDB := db.SQL()
	defer sqlDB.Close()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// MigrationStatus returns the applied schema version without changing it.
func (db *DB) MigrationStatus(ctx context.Context) (int64, error) {
	sqlDB := db.SQL()
	defer sqlDB.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, sqlDB)
}
