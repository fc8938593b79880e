package infra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenTestDB returns a migrated pool for integration tests. DATABASE_URL gets a
// throwaway schema; COLLECTFLOW_TEST_CONTAINERS=1 boots a container instead.
// Without either the test is skipped.
func OpenTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pool, teardown, err := ApplyMigrations(ctx, dsn, true)
		if err != nil {
			t.Fatalf("apply migrations: %v", err)
		}
		t.Cleanup(func() {
			pool.Close()
			if err := teardown(context.Background()); err != nil {
				t.Logf("teardown warning: %v", err)
			}
		})
		return pool
	}

	if os.Getenv("COLLECTFLOW_TEST_CONTAINERS") == "1" {
		h, err := NewHarness(ctx)
		if err != nil {
			t.Fatalf("start harness: %v", err)
		}
		t.Cleanup(func() { h.Close(context.Background()) })
		return h.Pool()
	}

	t.Skip("DATABASE_URL is empty and COLLECTFLOW_TEST_CONTAINERS is unset; skipping integration test")
	return nil
}

// SeedCase inserts a debtor and an active case and returns their ids.
func SeedCase(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orgID, priority string, amount float64, createdAt time.Time) (debtorID, caseID string) {
	t.Helper()
	if err := pool.QueryRow(ctx, `
		INSERT INTO debtors (organization_id, name, email, preferred_language, risk_profile)
		VALUES ($1, 'Ada Lovelace', 'ada@example.com', 'en', 'medium') RETURNING id::text
	`, orgID).Scan(&debtorID); err != nil {
		t.Fatalf("seed debtor: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO cases (organization_id, debtor_id, priority, outstanding_amount, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id::text
	`, orgID, debtorID, priority, amount, createdAt).Scan(&caseID); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return debtorID, caseID
}
