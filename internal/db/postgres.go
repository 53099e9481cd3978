// Package db owns the process-wide Postgres pool.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var Pool *pgxpool.Pool

var (
	newPool  = pgxpool.New
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

// InitPostgres opens the pool. Postgres only backs the history fallback, so
// an empty DSN or a failed ping logs a warning and leaves Pool nil.
func InitPostgres(ctx context.Context, dsn string, log zerolog.Logger) *pgxpool.Pool {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, price bar persistence disabled")
		return nil
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Warn().Err(err).Msg("invalid DATABASE_URL, price bar persistence disabled")
		return nil
	}
	if err := pingPool(ctx, pool); err != nil {
		log.Warn().Err(err).Msg("postgres unreachable, price bar persistence disabled")
		pool.Close()
		return nil
	}

	Pool = pool
	log.Info().Msg("connected to Postgres")
	return pool
}

// Close releases the pool if it was opened.
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
