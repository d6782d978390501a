// Package config loads service configuration from the environment. A local
// .env file is honored when present so development mirrors the deployed
// container, which receives the same variables from its runtime.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the registration gateway.
type Config struct {
	Addr   string `env:"ONBOARD_ADDR" envDefault:":8080"`
	APIKey string `env:"ONBOARD_API_KEY,required"`

	SequenceTTL time.Duration `env:"ONBOARD_SEQUENCE_TTL" envDefault:"1h"`
	OTPTTL      time.Duration `env:"ONBOARD_OTP_TTL" envDefault:"10m"`

	Redis    RedisConfig
	Keycloak KeycloakConfig
	Mail     MailConfig
}

// RedisConfig controls the shared state store. An empty URL leaves Redis
// unconfigured; the server then falls back to in-memory stores, which is only
// suitable for a single instance.
type RedisConfig struct {
	URL          string        `env:"ONBOARD_REDIS_URL"`
	PoolSize     int           `env:"ONBOARD_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"ONBOARD_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"ONBOARD_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"ONBOARD_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"ONBOARD_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KeycloakConfig points at the identity provider's admin API. An empty
// BaseURL selects the in-memory identity gateway (development only).
type KeycloakConfig struct {
	BaseURL  string        `env:"ONBOARD_KEYCLOAK_URL"`
	Realm    string        `env:"ONBOARD_KEYCLOAK_REALM" envDefault:"onboard"`
	ClientID string        `env:"ONBOARD_KEYCLOAK_CLIENT_ID" envDefault:"admin-cli"`
	Username string        `env:"ONBOARD_KEYCLOAK_USERNAME"`
	Password string        `env:"ONBOARD_KEYCLOAK_PASSWORD"`
	Timeout  time.Duration `env:"ONBOARD_KEYCLOAK_TIMEOUT" envDefault:"10s"`
}

// MailConfig points at the transactional mail API used for OTP delivery. An
// empty APIKey selects the log-only sender (development only).
type MailConfig struct {
	BaseURL   string        `env:"ONBOARD_MAIL_URL" envDefault:"https://api.sendgrid.com"`
	APIKey    string        `env:"ONBOARD_MAIL_API_KEY"`
	FromEmail string        `env:"ONBOARD_MAIL_FROM" envDefault:"no-reply@onboard.local"`
	FromName  string        `env:"ONBOARD_MAIL_FROM_NAME" envDefault:"Onboard"`
	Timeout   time.Duration `env:"ONBOARD_MAIL_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the environment, preloading .env when one
// exists in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
