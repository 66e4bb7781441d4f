package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock provides named global locks backed by PostgreSQL session
// advisory locks. The lock is bound to a dedicated pooled connection which is
// held until Release, so the lock cannot outlive its session.
type AdvisoryLock struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLock creates an AdvisoryLock facility over the given pool.
func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{pool: pool}
}

// LockHandle represents a held advisory lock. Release must be called exactly
// once; it unlocks and returns the connection to the pool.
type LockHandle struct {
	conn   *pgxpool.Conn
	lockID int64
}

// TryAcquire attempts to take the advisory lock without blocking.
// Returns (nil, false, nil) when another session holds the lock.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, lockID int64) (*LockHandle, bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %d: %w", lockID, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	return &LockHandle{conn: conn, lockID: lockID}, true, nil
}

// WithLock runs fn while holding the advisory lock. Returns false without
// running fn when another session holds the lock.
func (l *AdvisoryLock) WithLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	handle, acquired, err := l.TryAcquire(ctx, lockID)
	if err != nil || !acquired {
		return false, err
	}
	defer func() { _ = handle.Release(ctx) }()

	return true, fn(ctx)
}

// Release unlocks the advisory lock and returns the connection to the pool.
func (h *LockHandle) Release(ctx context.Context) error {
	defer h.conn.Release()

	var unlocked bool
	err := h.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, h.lockID).Scan(&unlocked)
	if err != nil {
		return fmt.Errorf("advisory unlock %d: %w", h.lockID, err)
	}
	if !unlocked {
		return fmt.Errorf("advisory unlock %d: lock was not held", h.lockID)
	}
	return nil
}
