package app

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/auth"
	"github.com/elskow/mystery-message/internal/cache"
	"github.com/elskow/mystery-message/internal/config"
	"github.com/elskow/mystery-message/internal/database"
	"github.com/elskow/mystery-message/internal/migration"
	"github.com/elskow/mystery-message/internal/notify"
	"github.com/elskow/mystery-message/internal/server"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		// Metrics registry
		fx.Provide(newRegistry),

		// Storage
		database.Module(),
		migration.Module(),
		fx.Provide(func(m *database.Manager) server.Pinger { return m }),

		// Shared cache, verification delivery
		cache.Module(),
		notify.Module(),

		// Auth Module
		auth.NewModule(),

		// Servers
		fx.Provide(server.NewServer),
		fx.Provide(newOpsServer),

		// Start the servers
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	return server.NewLogger(env)
}

type registryOut struct {
	fx.Out

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func newRegistry() registryOut {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registryOut{Registerer: reg, Gatherer: reg}
}

func newOpsServer(config *config.AppConfig, database server.Pinger, log *zap.Logger) *server.OpsServer {
	return server.NewOpsServer(config, database, log)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	shutdowner fx.Shutdowner,
	srv *server.Server,
	ops *server.OpsServer,
	config *config.AppConfig,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			go func() {
				if err := ops.Start(); err != nil {
					log.Error("failed to start gRPC ops server", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down servers...")
			ops.Stop()

			ctx, cancel := context.WithTimeout(ctx, config.Server.ShutdownTimeout)
			defer cancel()
			return srv.Stop(ctx)
		},
	})
}
