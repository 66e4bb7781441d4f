package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// TxQuerier is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept it so the same method runs standalone or inside the
// purchase transaction.
type TxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPool connects to the order store, retrying with exponential backoff
// (1s, 2s, 4s, ...) until the retries are spent or ctx is done. A malformed
// DSN fails immediately without retrying.
//
// Pool sizing rides on the DSN (pool_max_conns, pool_min_conns; see
// config.DBConfig). Size it for the worker concurrency plus the HTTP
// handlers plus the one connection the advisory lock pins.
func NewPool(ctx context.Context, dsn string, retries int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			// pgxpool connects lazily; ping to prove the store is reachable.
			err = pool.Ping(ctx)
			if err == nil {
				log.Info().
					Str("database", poolCfg.ConnConfig.Database).
					Int32("max_conns", poolCfg.MaxConns).
					Msg("order store connected")
				return pool, nil
			}
			pool.Close()
			err = fmt.Errorf("ping: %w", err)
		}
		lastErr = err

		wait := time.Duration(1<<(attempt-1)) * time.Second
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("retries", retries).
			Dur("retry_in", wait).
			Msg("order store unreachable, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("database unreachable after %d attempts: %w", retries, lastErr)
}
