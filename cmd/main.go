package main

import (
	"flag"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/app"
	"github.com/elskow/mystery-message/internal/server"
)

func main() {
	env := flag.String("env", os.Getenv("APP_ENV"), "runtime environment (development, production, testing)")
	configDir := flag.String("config", "", "directory holding config.toml")
	flag.Parse()

	if *env == "" {
		*env = server.EnvDevelopment
	}
	os.Setenv("APP_ENV", *env)
	if *configDir != "" {
		os.Setenv("APP_CONFIG_DIR", *configDir)
	}

	logger, err := server.NewLogger(*env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application := fx.New(
		app.Module(),
		fx.StartTimeout(30*time.Second),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	if err := application.Err(); err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	application.Run()
}
