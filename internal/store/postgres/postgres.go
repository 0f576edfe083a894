// Package postgres implements account.UserStore on a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/observability/logger"
)

// Store holds the pool. One Store serves the whole process.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New parses the DSN, opens the pool, and pings it once. A failed startup
// ping only warns; the pool reconnects on demand.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	log := logger.Named("postgres")
	if err := pool.Ping(ctx); err != nil {
		log.Warn("startup ping failed", zap.Error(err))
	} else {
		log.Info("pool ready", zap.Int32("max_conns", cfg.MaxConns))
	}

	return &Store{pool: pool, log: log}, nil
}

// Pool exposes the underlying pool for health checks and metrics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close shuts the pool down. Idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'customer',
	avatar        TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT users_email_key UNIQUE (email)
);
`

// EnsureSchema creates the users table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
