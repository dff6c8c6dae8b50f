package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  string `mapstructure:"port"`
	EnableReflection      bool   `mapstructure:"enable_reflection"`
	MaxReceiveMessageSize int    `mapstructure:"max_receive_message_size"`
	MaxSendMessageSize    int    `mapstructure:"max_send_message_size"`
}

type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	SSLMode       string `mapstructure:"sslmode"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	LogLevel      string `mapstructure:"log_level"`
}

// DSN renders the key/value connection string understood by both lib/pq and pgx.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host,
		c.User,
		c.Password,
		c.Name,
		c.Port,
		c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	Issuer              string        `mapstructure:"issuer"`
	TokenExpiration     time.Duration `mapstructure:"token_expiration"`
	RefreshTokenEnabled bool          `mapstructure:"refresh_token_enabled"`
	CookieName          string        `mapstructure:"cookie_name"`
	SecureCookie        bool          `mapstructure:"secure_cookie"`
	BcryptCost          int           `mapstructure:"bcrypt_cost"`
}

type VerificationConfig struct {
	CodeTTL time.Duration `mapstructure:"code_ttl"`
}

type NotificationConfig struct {
	Driver     string        `mapstructure:"driver"` // "amqp" or "log"
	AMQPURL    string        `mapstructure:"amqp_url"`
	Exchange   string        `mapstructure:"exchange"`
	RoutingKey string        `mapstructure:"routing_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	SignInLimit  int           `mapstructure:"sign_in_limit"`
	SignInWindow time.Duration `mapstructure:"sign_in_window"`
}

type GuardConfig struct {
	HomePath                  string   `mapstructure:"home_path"`
	SignInPath                string   `mapstructure:"sign_in_path"`
	RedirectWhenAuthenticated []string `mapstructure:"redirect_when_authenticated"`
	ProtectedPrefixes         []string `mapstructure:"protected_prefixes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AppConfig struct {
	Server       ServerConfig       `mapstructure:"server"`
	GRPC         GRPCConfig         `mapstructure:"grpc"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Verification VerificationConfig `mapstructure:"verification"`
	Notification NotificationConfig `mapstructure:"notification"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Guard        GuardConfig        `mapstructure:"guard"`
	CORS         CORSConfig         `mapstructure:"cors"`
}
