package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend randomly kills a backend of the test database. Backends
// holding advisory locks are spared: losing one silently drops a case lock
// while its run continues, which the overlap oracle would then report.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `
					SELECT pg_terminate_backend(a.pid)
					FROM pg_stat_activity a
					WHERE a.datname = current_database()
					  AND a.pid <> pg_backend_pid()
					  AND NOT EXISTS (SELECT 1 FROM pg_locks l WHERE l.pid = a.pid AND l.locktype = 'advisory')
					ORDER BY random() LIMIT 1`)
			}
		}
	}
}
