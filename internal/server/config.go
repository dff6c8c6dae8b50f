package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/elskow/mystery-message/internal/api"
	"github.com/elskow/mystery-message/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

const minJWTSecretLength = 16

// LoadConfig reads config.toml from APP_CONFIG_DIR, falling back to
// ./config/server.
func LoadConfig() (*config.AppConfig, error) {
	if dir := os.Getenv("APP_CONFIG_DIR"); dir != "" {
		return loadConfig(dir)
	}
	return loadConfig("./config/server")
}

func loadConfig(paths ...string) (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// APP_AUTH_JWT_SECRET overrides auth.jwt_secret, and so on. Only keys viper
	// already knows about (defaults or file) are picked up by Unmarshal.
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	if envSettings := v.GetStringMap(fmt.Sprintf("grpc.%s", env)); len(envSettings) > 0 {
		if err := v.UnmarshalKey(fmt.Sprintf("grpc.%s", env), &config.GRPC); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("grpc.enable_reflection", false)
	v.SetDefault("grpc.max_receive_message_size", 4<<20)
	v.SetDefault("grpc.max_send_message_size", 4<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "mystery_message")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.migrations_dir", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "mystery-message")
	v.SetDefault("auth.token_expiration", 30*24*time.Hour)
	v.SetDefault("auth.refresh_token_enabled", true)
	v.SetDefault("auth.cookie_name", "session_token")
	v.SetDefault("auth.secure_cookie", true)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("verification.code_ttl", time.Hour)

	v.SetDefault("notification.driver", "log")
	v.SetDefault("notification.amqp_url", "")
	v.SetDefault("notification.exchange", "notifications")
	v.SetDefault("notification.routing_key", "email.verification")
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "mystery-message")
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.sign_in_limit", 10)
	v.SetDefault("redis.sign_in_window", 15*time.Minute)

	v.SetDefault("guard.home_path", api.PageDashboard)
	v.SetDefault("guard.sign_in_path", api.PageSignIn)
	v.SetDefault("guard.redirect_when_authenticated", api.RedirectWhenAuthenticated)
	v.SetDefault("guard.protected_prefixes", api.ProtectedPrefixes)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

func validateConfig(cfg *config.AppConfig) error {
	if len(cfg.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", minJWTSecretLength)
	}
	if cfg.Auth.TokenExpiration <= 0 {
		return errors.New("auth.token_expiration must be positive")
	}
	if cfg.Verification.CodeTTL <= 0 {
		return errors.New("verification.code_ttl must be positive")
	}
	switch cfg.Notification.Driver {
	case "log":
	case "amqp":
		if cfg.Notification.AMQPURL == "" {
			return errors.New("notification.amqp_url is required for the amqp driver")
		}
	default:
		return fmt.Errorf("unknown notification driver %q", cfg.Notification.Driver)
	}
	return nil
}
