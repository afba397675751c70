package app

import (
	"context"
	"log/slog"

	"github.com/StricklySoft/learnhub-auth/internal/store"
	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// Migration actions.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// RunMigrations applies action against the configured database and
// returns the schema version afterwards.
func RunMigrations(ctx context.Context, cfg Config, action string, logger *slog.Logger) (int64, error) {
	switch action {
	case MigrateUp, MigrateDown, MigrateStatus:
	default:
		return 0, sserr.Newf(sserr.CodeValidation, "app: unknown migration action %q", action)
	}

	client, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	db, err := client.StdDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	switch action {
	case MigrateUp:
		err = store.Migrate(ctx, db)
	case MigrateDown:
		err = store.MigrateDown(ctx, db)
	}
	if err != nil {
		return 0, err
	}

	version, err := store.MigrationStatus(ctx, db)
	if err != nil {
		return 0, err
	}
	logger.InfoContext(ctx, "app: migrations", "action", action, "version", version)
	return version, nil
}
