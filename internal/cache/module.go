package cache

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/auth"
	"github.com/elskow/mystery-message/internal/config"
)

type Backends struct {
	fx.Out

	Locker  auth.Locker
	Limiter auth.AttemptLimiter
}

// Module provides the Redis lock and limiter. Both are nil when redis is
// disabled and auth falls back to running without them.
func Module() fx.Option {
	return fx.Provide(newBackends)
}

func newBackends(lifecycle fx.Lifecycle, cfg *config.AppConfig, logger *zap.Logger) Backends {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled; registration lock and sign-in limiting are off")
		return Backends{}
	}

	client := NewClient(&cfg.Redis)
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis is unreachable at %s: %w", cfg.Redis.Addr, err)
			}
			logger.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Backends{
		Locker:  NewLock(client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, logger),
		Limiter: NewAttemptLimiter(client, cfg.Redis.KeyPrefix, cfg.Redis.SignInLimit, cfg.Redis.SignInWindow),
	}
}
