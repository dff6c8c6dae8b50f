package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elskow/mystery-message/internal/config"
	"github.com/elskow/mystery-message/internal/notify"
)

// Dependencies supplied by other modules. Locker and Limiter are nil when the
// shared cache is disabled.
type coreParams struct {
	fx.In

	Config  *config.AppConfig
	Log     *zap.Logger
	Repo    Repository
	Hasher  Hasher
	Metrics *Metrics
	Sender  notify.Sender
	Locker  Locker         `optional:"true"`
	Limiter AttemptLimiter `optional:"true"`
}

// NewModule returns the auth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide repository
			func(db *gorm.DB) Repository {
				return NewRepository(db)
			},
			func(config *config.AppConfig) Hasher {
				return NewBcryptHasher(config.Auth.BcryptCost)
			},
			func(reg prometheus.Registerer) *Metrics {
				return NewMetrics(reg)
			},
			func(p coreParams) *Verifier {
				return NewVerifier(p.Repo, p.Metrics, p.Log, p.Config.Verification.CodeTTL)
			},
			func(p coreParams, verifier *Verifier) *Registrar {
				return NewRegistrar(RegistrarParams{
					Repository:  p.Repo,
					Hasher:      p.Hasher,
					Verifier:    verifier,
					Sender:      p.Sender,
					Locker:      p.Locker,
					Metrics:     p.Metrics,
					Log:         p.Log,
					SendTimeout: p.Config.Notification.Timeout,
				})
			},
			func(p coreParams) *SessionAuthority {
				return NewSessionAuthority(&p.Config.Auth, p.Repo, p.Hasher, p.Limiter, p.Metrics, p.Log)
			},
			func(repo Repository, log *zap.Logger) *Messages {
				return NewMessages(repo, log)
			},
			// Provide middleware
			func(config *config.AppConfig, sessions *SessionAuthority, log *zap.Logger) *AuthMiddleware {
				return NewAuthMiddleware(&config.Auth, sessions, log)
			},
			func(config *config.AppConfig, sessions *AuthMiddleware, log *zap.Logger) *Guard {
				return NewGuard(&config.Guard, sessions, log)
			},
			// Provide handler
			func(
				config *config.AppConfig,
				registrar *Registrar,
				verifier *Verifier,
				sessions *SessionAuthority,
				messages *Messages,
				middleware *AuthMiddleware,
				log *zap.Logger,
			) *Handler {
				return NewHandler(&config.Auth, registrar, verifier, sessions, messages, middleware, log)
			},
		),
	)
}
