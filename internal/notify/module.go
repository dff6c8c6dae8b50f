package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(newSender),
	)
}

func newSender(lifecycle fx.Lifecycle, cfg *config.AppConfig, logger *zap.Logger) (Sender, error) {
	if cfg.Notification.Driver != "amqp" {
		logger.Warn("verification codes are logged, not delivered",
			zap.String("driver", cfg.Notification.Driver))
		return NewLogSender(logger), nil
	}

	sender, err := NewAMQPSender(&cfg.Notification, logger)
	if err != nil {
		return nil, err
	}

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing rabbitmq connection")
			return sender.Close()
		},
	})

	return sender, nil
}
