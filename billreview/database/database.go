package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/log"
)

// Connect opens the database referenced by DATABASE_URL using the pgx driver.
// The first ping is retried with exponential backoff so the API can start before Postgres is ready.
func Connect(ctx context.Context) (*sql.DB, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return ConnectWithConfig(ctx, cfg)
}

func ConnectWithConfig(ctx context.Context, cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	if err := ping(ctx, db, cfg.ConnectRetries); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ConnectPool returns a pgx pool for bulk operations (COPY).
func ConnectPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database url")
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleTime) * time.Second
	poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute
	poolCfg.HealthCheckPeriod = time.Duration(cfg.HealthCheckSec) * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pgx pool")
	}

	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, retryPolicy(ctx, cfg.ConnectRetries)); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return pool, nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func ping(ctx context.Context, db pinger, retries int) error {
	attempt := 0
	op := func() error {
		attempt++
		err := db.PingContext(ctx)
		if err != nil {
			log.API.WithFields(logrus.Fields{"attempt": attempt}).Warnf("Database ping failed: %s", err)
		}
		return err
	}

	if err := backoff.Retry(op, retryPolicy(ctx, retries)); err != nil {
		return errors.Wrap(err, "failed to ping database")
	}
	return nil
}

func retryPolicy(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Close closes db, logging instead of returning any error.
func Close(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.API.Infof("failed to close db connection: %s", err)
	}
}
