// Package config loads service configuration from an optional YAML file and
// LOCALCREDITS_* environment variables.
package config

import "time"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url" validate:"required"`
	MaxConns       int32  `mapstructure:"max_conns" validate:"gte=0"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	// AdminEmails are given the admin role at registration.
	AdminEmails []string `mapstructure:"admin_emails" validate:"dive,email"`
}

// RedisConfig enables distributed transition locks. Empty Addr keeps locks
// in process, which is only correct for a single instance.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type LockConfig struct {
	Expiry     time.Duration `mapstructure:"expiry" validate:"gt=0"`
	Tries      int           `mapstructure:"tries" validate:"gt=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

type NotifyConfig struct {
	Workers    int    `mapstructure:"workers" validate:"gt=0"`
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}
