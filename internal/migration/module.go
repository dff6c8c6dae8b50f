package migration

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

// Module migrates the schema on start when database.auto_migrate is set
func Module() fx.Option {
	return fx.Invoke(registerHooks)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	config *config.AppConfig,
	logger *zap.Logger,
) {
	if !config.Database.AutoMigrate {
		logger.Info("Automatic migrations disabled")
		return
	}

	var migrator *Migrator
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			migrator, err = NewMigrator(&config.Database, logger)
			if err != nil {
				return err
			}
			return Sync(ctx, migrator, logger)
		},
		OnStop: func(ctx context.Context) error {
			if migrator == nil {
				return nil
			}
			return migrator.Close()
		},
	})
}

// Sync brings the schema to the latest known version, moving down when the
// database is ahead of the bundled migrations.
func Sync(ctx context.Context, migrator *Migrator, logger *zap.Logger) error {
	currentVersion, err := migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	latestVersion := migrator.LatestVersion()

	logger.Info("Database migration status",
		zap.Int64("current_version", currentVersion),
		zap.Int64("latest_version", latestVersion))

	switch {
	case currentVersion > latestVersion:
		logger.Info("Downgrading database schema",
			zap.Int64("from_version", currentVersion),
			zap.Int64("to_version", latestVersion))
		if err := migrator.DownTo(ctx, latestVersion); err != nil {
			return fmt.Errorf("failed to downgrade database: %w", err)
		}
	case currentVersion < latestVersion:
		logger.Info("Upgrading database schema",
			zap.Int64("from_version", currentVersion),
			zap.Int64("to_version", latestVersion))
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("failed to upgrade database: %w", err)
		}
	}

	return nil
}
