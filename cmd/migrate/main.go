package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/migration"
	"github.com/elskow/mystery-message/internal/server"
)

func main() {
	command := flag.String("command", "up", "migration command (up/down/status/version/reset/sync)")
	flag.Parse()

	if os.Getenv("APP_ENV") == "" {
		os.Setenv("APP_ENV", server.EnvDevelopment)
	}

	logger, err := server.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config
	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Create migrator
	migrator, err := migration.NewMigrator(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *command, migrator, logger); err != nil {
		logger.Error("Migration command failed", zap.String("command", *command), zap.Error(err))
		migrator.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, migrator *migration.Migrator, logger *zap.Logger) error {
	switch command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			return err
		}
		logger.Info("Successfully ran migrations")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			return err
		}
		logger.Info("Successfully rolled back migrations")

	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range status {
			logger.Info("Migration",
				zap.Int64("version", s.Source.Version),
				zap.String("path", s.Source.Path),
				zap.String("state", string(s.State)),
				zap.Time("applied_at", s.AppliedAt))
		}

	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		logger.Info("Current migration version",
			zap.Int64("version", version),
			zap.Int64("latest", migrator.LatestVersion()))

	case "reset":
		if err := migrator.Reset(ctx); err != nil {
			return err
		}
		logger.Info("Successfully reset migrations")

	case "sync":
		return migration.Sync(ctx, migrator, logger)

	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	return nil
}
