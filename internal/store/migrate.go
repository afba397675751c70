package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Seams for tests; goose itself needs a live database.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
	gooseStatusContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.StatusContext(ctx, db, dir, opts...)
	}
	gooseGetDBVersionContext = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

func setupGoose() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration, "store: failed to set migration dialect")
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, migrationsDir); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "store: migrate up failed")
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := gooseDownContext(ctx, db, migrationsDir); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "store: migrate down failed")
	}
	return nil
}

// MigrationStatus logs the state of every migration through goose's
// logger and returns the current schema version.
func MigrationStatus(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	if err := gooseStatusContext(ctx, db, migrationsDir); err != nil {
		return 0, sserr.Wrap(err, sserr.CodeInternalDatabase, "store: migration status failed")
	}
	version, err := gooseGetDBVersionContext(ctx, db)
	if err != nil {
		return 0, sserr.Wrap(err, sserr.CodeInternalDatabase, "store: failed to read schema version")
	}
	return version, nil
}
