// Package config loads all process configuration from the environment so main
// stays lean. Defaults match local development against docker-compose services.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr     string `env:"BLOOMENCE_ADDR" envDefault:":3001"`
	AppURL   string `env:"APP_URL" envDefault:"http://localhost:5173"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	Mongo    MongoConfig
	SMTP     SMTPConfig
	Identity IdentityConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
	Sweep    SweepConfig
	Tracing  TracingConfig
}

type TracingConfig struct {
	// Enabled exports spans to stdout. Swap the exporter for a collector
	// endpoint when the deployment grows one.
	Enabled bool `env:"TRACE_ENABLED" envDefault:"false"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DB" envDefault:"bloomence"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM" envDefault:"Bloomence <no-reply@bloomence.app>"`
}

// IdentityConfig points the token verifier at one identity provider for the
// process lifetime.
type IdentityConfig struct {
	Issuer   string `env:"IDENTITY_ISSUER"`
	Audience string `env:"IDENTITY_AUDIENCE"`
	// CertsURL serves the provider's current signing certificates as a
	// JSON object of kid -> PEM certificate.
	CertsURL string `env:"IDENTITY_CERTS_URL"`
}

type RedisConfig struct {
	// URL enables the cross-instance realtime bridge when set.
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type KafkaConfig struct {
	// Brokers enables the notification event stream when non-empty.
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_NOTIFICATIONS_TOPIC" envDefault:"bloomence.notifications"`
}

type NotifyConfig struct {
	// ScoreEmailWindow throttles the repeatable score-summary/welcome-back
	// email per user.
	ScoreEmailWindow time.Duration `env:"SCORE_EMAIL_WINDOW" envDefault:"24h"`
}

type SweepConfig struct {
	Interval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	DormantAfter time.Duration `env:"SWEEP_DORMANT_AFTER" envDefault:"168h"`
	BatchLimit   int           `env:"SWEEP_BATCH_LIMIT" envDefault:"200"`
}

// Load parses the full configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
