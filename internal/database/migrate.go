package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/turnstile/migrations"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations. Goose needs a database/sql
// handle, so one is opened from the pool's connection config for the duration.
func (db *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if db.logger != nil {
		version, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err == nil {
			db.logger.Info("database migrations applied", slog.Int64("version", version))
		}
	}
	return nil
}
