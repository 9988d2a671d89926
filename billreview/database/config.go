package database

import (
	"errors"

	customErrors "github.com/clarity-dx/bill-review/billreview/errors"
	"github.com/clarity-dx/bill-review/conf"
	"github.com/clarity-dx/bill-review/log"
)

type Config struct {
	MaxOpenConns       int `conf:"DB_MAX_OPEN_CONNS" conf_default:"25"`
	MaxIdleConns       int `conf:"DB_MAX_IDLE_CONNS" conf_default:"25"`
	ConnMaxLifetimeMin int `conf:"DB_CONN_MAX_LIFETIME_MIN" conf_default:"5"`
	ConnMaxIdleTime    int `conf:"DB_CONN_MAX_IDLE_TIME_SEC" conf_default:"30"`

	DatabaseURL string `conf:"DATABASE_URL"`

	HealthCheckSec int `conf:"DB_HEALTH_CHECK_SEC" conf_default:"10"`
	ConnectRetries int `conf:"DB_CONNECT_RETRIES" conf_default:"5"`
}

func LoadConfig() (cfg *Config, err error) {
	cfg = &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	if cfg.ConnectRetries < 1 {
		return nil, &customErrors.ConfigError{Key: "DB_CONNECT_RETRIES", Err: errors.New("must be positive")}
	}

	if cfg.DatabaseURL == "" {
		return nil, &customErrors.ConfigError{Key: "DATABASE_URL", Err: errors.New("must be set")}
	}

	log.API.Info("Successfully loaded configuration for Database.")

	return cfg, nil
}
