package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TopicRunCompleted is the outbox topic written when a run finishes.
const TopicRunCompleted = "workflow.run_completed"

// ErrRunNotFound is returned when a run id matches no row.
var ErrRunNotFound = errors.New("workflow: run not found")

// PGRunStore persists runs, per-step results and completion markers.
type PGRunStore struct {
	pool *pgxpool.Pool
}

func NewRunStore(pool *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{pool: pool}
}

// StartRun inserts the run row in running state.
func (s *PGRunStore) StartRun(ctx context.Context, run RunRecord) error {
	const q = `
		INSERT INTO workflow_runs (id, organization_id, case_id, workflow_id, workflow_name, actor_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.pool.Exec(ctx, q,
		run.ID,
		run.OrganizationID,
		run.CaseID,
		run.WorkflowID,
		run.WorkflowName,
		nullable(run.ActorID),
		run.Status,
		run.StartedAt,
	); err != nil {
		return fmt.Errorf("workflow: insert run: %w", err)
	}
	return nil
}

// AppendResult records one step result. A successful step also leaves a
// completion marker for its case and workflow.
func (s *PGRunStore) AppendResult(ctx context.Context, runID string, seq int, res StepResult) error {
	body, err := json.Marshal(nonNilMap(res.Result))
	if err != nil {
		return fmt.Errorf("workflow: marshal step result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertStep = `
		INSERT INTO workflow_run_steps (run_id, seq, step_id, outcome, result, error, executed_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
	`
	if _, err := tx.Exec(ctx, insertStep, runID, seq, res.StepID, res.Outcome, body, nullable(res.Error), res.ExecutedAt); err != nil {
		return fmt.Errorf("workflow: insert step result: %w", err)
	}

	if res.Outcome == OutcomeSuccess {
		const mark = `
			INSERT INTO workflow_step_completions (case_id, workflow_id, step_id, run_id, completed_at)
			SELECT case_id, workflow_id, $2, id, $3 FROM workflow_runs WHERE id = $1
			ON CONFLICT (case_id, workflow_id, step_id)
			DO UPDATE SET run_id = EXCLUDED.run_id, completed_at = EXCLUDED.completed_at
		`
		tag, err := tx.Exec(ctx, mark, runID, res.StepID, res.ExecutedAt)
		if err != nil {
			return fmt.Errorf("workflow: mark step completed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRunNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit step result: %w", err)
	}
	return nil
}

// FinishRun writes the final status and results and enqueues the completion
// message in the same transaction.
func (s *PGRunStore) FinishRun(ctx context.Context, run RunRecord) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("workflow: marshal results: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"run_id":          run.ID,
		"organization_id": run.OrganizationID,
		"case_id":         run.CaseID,
		"workflow_id":     run.WorkflowID,
		"status":          run.Status,
		"steps_executed":  run.StepsExecuted,
	})
	if err != nil {
		return fmt.Errorf("workflow: marshal outbox payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const update = `
		UPDATE workflow_runs
		SET status = $2, steps_executed = $3, results = $4::jsonb, completed_at = $5
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, update, run.ID, run.Status, run.StepsExecuted, results, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("workflow: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, TopicRunCompleted, payload); err != nil {
		return fmt.Errorf("workflow: insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit run: %w", err)
	}
	return nil
}

// CompletedSteps returns the step ids with a completion marker.
func (s *PGRunStore) CompletedSteps(ctx context.Context, caseID, workflowID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step_id FROM workflow_step_completions WHERE case_id = $1 AND workflow_id = $2`,
		caseID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list completed steps: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("workflow: scan completed step: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: iterate completed steps: %w", err)
	}
	return out, nil
}

// GetRun loads a single run.
func (s *PGRunStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return RunRecord{}, ErrRunNotFound
	}
	const q = runColumns + ` WHERE id = $1`
	run, err := scanRun(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunRecord{}, ErrRunNotFound
		}
		return RunRecord{}, fmt.Errorf("workflow: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs for a case within an organization,
// newest first. A case id that is not a uuid is ErrCaseNotFound.
func (s *PGRunStore) ListRuns(ctx context.Context, organizationID, caseID string, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if _, err := uuid.Parse(caseID); err != nil {
		return nil, ErrCaseNotFound
	}
	if _, err := uuid.Parse(organizationID); err != nil {
		return []RunRecord{}, nil
	}
	const q = runColumns + ` WHERE organization_id = $1 AND case_id = $2 ORDER BY started_at DESC LIMIT $3`

	rows, err := s.pool.Query(ctx, q, organizationID, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("workflow: list runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: iterate runs: %w", err)
	}
	return out, nil
}

const runColumns = `
	SELECT id::text, organization_id::text, case_id::text, workflow_id, workflow_name, COALESCE(actor_id, ''),
	       status, steps_executed, results, started_at, completed_at
	FROM workflow_runs`

func scanRun(row pgx.Row) (RunRecord, error) {
	var (
		run     RunRecord
		results []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.OrganizationID,
		&run.CaseID,
		&run.WorkflowID,
		&run.WorkflowName,
		&run.ActorID,
		&run.Status,
		&run.StepsExecuted,
		&results,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return RunRecord{}, fmt.Errorf("workflow: decode results: %w", err)
	}
	return run, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
