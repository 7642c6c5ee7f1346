package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Port        string `envconfig:"ORDER_SERVICE_PORT" default:":8082"`
	LogLevel    string `envconfig:"LOG_LEVEL"          default:"info"`

	// ServiceTimezone fixes the civil day used for group-id allocation and the
	// daily report. It must never fall back to the host zone.
	ServiceTimezone string `envconfig:"SERVICE_TIMEZONE" default:"America/Bogota"`

	// Connection pool sizing. MaxOpenConns bounds the simultaneous holders of
	// the day-allocation lock plus unrelated per-user work.
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS"     default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS"     default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME"  default:"5m"`
	DBConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"30s"`
}

func LoadConfig(logger *logrus.Logger) *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	} else if err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatalf("Failed to process configuration from environment variables: %v", err)
	}

	logger.Infof("Configuration loaded: Port=%s, LogLevel=%s, Timezone=%s",
		cfg.Port, cfg.LogLevel, cfg.ServiceTimezone)
	return &cfg
}

// Location resolves the configured service timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ServiceTimezone)
}
