package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB owns the pgx pool backing the security event repository
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// GaugeRegistrar registers gauges read at scrape time
type GaugeRegistrar interface {
	GaugeFunc(name, help string, fn func() float64)
}

// NewConnection opens the pool and verifies it with a ping, giving up after ten seconds
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("database connection established",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)),
		slog.Int("min_conns", int(cfg.MinConns)),
	)

	return NewFromPool(pool, logger), nil
}

// NewFromPool wraps an existing pool
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{Pool: pool, logger: logger}
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// Ping reports whether the database answers within two seconds
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// RegisterPoolMetrics exposes pool occupancy through r
func (db *DB) RegisterPoolMetrics(r GaugeRegistrar) {
	r.GaugeFunc("db_pool_acquired_conns", "Connections currently acquired from the pool.", func() float64 {
		return float64(db.Pool.Stat().AcquiredConns())
	})
	r.GaugeFunc("db_pool_idle_conns", "Idle connections held by the pool.", func() float64 {
		return float64(db.Pool.Stat().IdleConns())
	})
	r.GaugeFunc("db_pool_max_conns", "Maximum size of the pool.", func() float64 {
		return float64(db.Pool.Stat().MaxConns())
	})
}
