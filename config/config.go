/*
Package config loads the server configuration from the environment.

PURPOSE:
  A .env file in the working directory is read first when present, then
  every field of Config is filled from its environment variable or its
  default. Command-line flags in cmd/server override PORT and DB_PATH.

OPTIONAL INTEGRATIONS:
  RABBITMQ_URL    empty: notifications are only logged
  REDIS_ADDR      empty: balance cache disabled
  JAEGER_ENDPOINT empty: spans go to the global no-op provider

SEE ALSO:
  - cmd/server/main.go: Wiring
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"stay.db"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Notifications
	RabbitMQURL    string        `envconfig:"RABBITMQ_URL"`
	NotifyExchange string        `envconfig:"NOTIFY_EXCHANGE" default:"stay.events"`
	NotifyTimeout  time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`

	// Balance cache
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	// Drift repair
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1h"`
	ReconcileEnabled  bool          `envconfig:"RECONCILE_ENABLED" default:"true"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Tracing
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT"`
	ServiceName    string `envconfig:"SERVICE_NAME" default:"stay-engine"`
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", cfg.ReconcileInterval)
	}
	return &cfg, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(c.LogFormat) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return logger, nil
}
