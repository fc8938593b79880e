package collection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCaseLocked signals another holder owns the advisory lock for the case.
var ErrCaseLocked = errors.New("collection: case locked")

const unlockTimeout = 5 * time.Second

// LockCase takes a session-level advisory lock keyed by case id on a dedicated
// connection. The returned release func unlocks and returns the connection to
// the pool; the lock is dropped by Postgres if the session dies first.
func (r *PGRepository) LockCase(ctx context.Context, caseID string) (func(), error) {
	if caseID == "" {
		return nil, fmt.Errorf("collection: lock missing case id")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("collection: acquire lock conn: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, caseID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("collection: try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrCaseLocked
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, caseID); err != nil {
			// A failed unlock leaves the lock on the session; close it so Postgres drops it.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return release, nil
}
