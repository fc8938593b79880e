package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"collectflow/scheduler"
	"collectflow/workflow"
)

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Runner keeps starting workflow runs on random cases. Several Runners race
// for the same cases, so most attempts hit the case lock.
func Runner(ctx context.Context, runner *workflow.Runner, caseIDs []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		caseID := caseIDs[rand.Intn(len(caseIDs))]
		_, err := runner.Execute(ctx, workflow.ExecuteRequest{
			CaseID:  caseID,
			ActorID: "stress-runner",
			Resume:  rand.Intn(2) == 0,
		})
		switch {
		case err == nil, errors.Is(err, workflow.ErrCaseLocked):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// Chaos kills backends mid-run; persistence errors are expected.
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Payer records partial payments and resolves cases that reach zero.
func Payer(ctx context.Context, pool *pgxpool.Pool, caseIDs []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		caseID := caseIDs[rand.Intn(len(caseIDs))]
		payment := float64(10 + rand.Intn(200))
		_, err := pool.Exec(ctx, `
			UPDATE cases
			SET outstanding_amount = GREATEST(outstanding_amount - $2, 0),
			    status = CASE WHEN outstanding_amount - $2 <= 0 THEN 'resolved' ELSE status END,
			    updated_at = now()
			WHERE id = $1 AND status <> 'resolved'`, caseID, payment)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Sweeper runs the due-case sweep on a short interval.
func Sweeper(ctx context.Context, sweeper *scheduler.Sweeper, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if _, err := sweeper.Sweep(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Rescheduler pulls next_action_due into the past so the sweeper has work.
func Rescheduler(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := pool.Exec(ctx, `
			UPDATE cases SET next_action_due = now() - interval '1 minute'
			WHERE id IN (SELECT id FROM cases WHERE status IN ('active','escalated') ORDER BY random() LIMIT 3)`)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks processed or dead after retries.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			// simulate random failure
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, status=CASE WHEN attempts >= 4 THEN 'dead' ELSE status END WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed' WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// SeedCases inserts n debtors and cases spread across priorities and ages so
// every catalog workflow is exercised.
func SeedCases(ctx context.Context, pool *pgxpool.Pool, orgID string, n int) ([]string, error) {
	priorities := []string{"low", "medium", "high", "critical"}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var debtorID, caseID string
		if err := pool.QueryRow(ctx, `
			INSERT INTO debtors (organization_id, name, email) VALUES ($1, $2, $3) RETURNING id::text`,
			orgID, fmt.Sprintf("Debtor %d", i), fmt.Sprintf("debtor%d@example.com", i)).Scan(&debtorID); err != nil {
			return nil, fmt.Errorf("seed debtor: %w", err)
		}
		ageDays := rand.Intn(60)
		if err := pool.QueryRow(ctx, `
			INSERT INTO cases (organization_id, debtor_id, priority, outstanding_amount, created_at)
			VALUES ($1, $2, $3, $4, now() - make_interval(days => $5)) RETURNING id::text`,
			orgID, debtorID, priorities[i%len(priorities)], 200+rand.Intn(2000), ageDays).Scan(&caseID); err != nil {
			return nil, fmt.Errorf("seed case: %w", err)
		}
		ids = append(ids, caseID)
	}
	return ids, nil
}
