package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies the pending migrations in fsys and returns the schema
// version the database ends on.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, logger *zap.Logger) (int64, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	pending, err := provider.HasPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check migrations: %w", err)
	}
	if pending {
		results, err := provider.Up(ctx)
		for _, res := range results {
			logger.Info("Migration applied",
				zap.Int64("version", res.Source.Version),
				zap.Duration("took", res.Duration),
			)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Schema up to date", zap.Int64("version", version))
	return version, nil
}
