/*
Package db implements docstore.Store on PostgreSQL.

Documents are rows of a single jsonb table keyed by (collection, id). Every
write runs in its own transaction stamped with clock_timestamp() and announces
itself with pg_notify; subscriptions LISTEN on a dedicated connection and turn
notifications into change batches. The schema is applied with goose from
embedded migrations when the pool is opened.
*/
package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"livechat/internal/pkg/logx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Pool sizing. Each live subscription holds one extra connection for LISTEN,
// so the ceiling is higher than a plain request workload needs.
const (
	maxConns        = 40
	minConns        = 2
	maxConnLifetime = 30 * time.Minute
	maxConnIdleTime = 5 * time.Minute
	connectTimeout  = 15 * time.Second
)

// NewPool connects to dsn, verifies the connection and brings the documents
// schema up to date.
func NewPool(dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = maxConnLifetime
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// migrate runs the embedded goose migrations over a database/sql handle
// borrowed from the pool's connection config.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logx.Info("Document schema is up to date", "schema_version", version)
	return nil
}
