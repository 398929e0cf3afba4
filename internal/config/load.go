package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "LOCALCREDITS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.admin_emails", []string{})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lock.expiry", "10s")
	v.SetDefault("lock.tries", 20)
	v.SetDefault("lock.retry_delay", "50ms")
	v.SetDefault("notify.workers", 5)
	v.SetDefault("notify.webhook_url", "")
}

// Load reads configuration. path may name a YAML file; when empty, a
// config.yaml in the working directory is used if present. Environment
// variables take precedence over the file. The unprefixed DATABASE_URL, PORT
// and JWT_SECRET are honoured as fallbacks for existing deployments.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs := []struct {
		key     string
		envVars []string
	}{
		{"database.url", []string{envPrefix + "_DATABASE_URL", "DATABASE_URL"}},
		{"server.port", []string{envPrefix + "_SERVER_PORT", "PORT"}},
		{"auth.jwt_secret", []string{envPrefix + "_AUTH_JWT_SECRET", "JWT_SECRET"}},
	}
	for _, b := range bindEnvs {
		args := append([]string{b.key}, b.envVars...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", b.key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
