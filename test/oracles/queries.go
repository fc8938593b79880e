package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_no_overlapping_runs",
			SQL: `SELECT a.case_id, a.id, b.id FROM workflow_runs a
                  JOIN workflow_runs b ON a.case_id = b.case_id AND a.id < b.id
                  WHERE a.completed_at IS NOT NULL AND b.completed_at IS NOT NULL
                    AND a.started_at < b.completed_at AND b.started_at < a.completed_at`,
		},
		{
			Name: "O2_outstanding_non_negative",
			SQL:  `SELECT id, outstanding_amount FROM cases WHERE outstanding_amount < 0`,
		},
		{
			Name: "O3_stage_bounded",
			SQL:  `SELECT id, current_stage FROM cases WHERE current_stage < 0 OR current_stage > 3`,
		},
		{
			Name: "O4_generated_comms_traceable",
			SQL: `SELECT id FROM communication_logs
                  WHERE ai_generated
                    AND NOT (metadata ? 'workflow_step_id' AND metadata ? 'workflow_run_id')`,
		},
		{
			Name: "O5_completion_backed_by_success",
			SQL: `SELECT c.case_id, c.step_id FROM workflow_step_completions c
                  LEFT JOIN workflow_run_steps s
                    ON s.run_id = c.run_id AND s.step_id = c.step_id AND s.outcome = 'success'
                  WHERE s.run_id IS NULL`,
		},
		{
			Name: "O6_stale_running_runs",
			SQL: `SELECT id FROM workflow_runs
                  WHERE status = 'running' AND started_at < now() - interval '5 minutes'`,
		},
		{
			Name: "O7_finished_run_has_outbox",
			SQL: `SELECT r.id FROM workflow_runs r
                  WHERE r.status <> 'running'
                    AND NOT EXISTS (SELECT 1 FROM outbox o
                                    WHERE o.topic = 'workflow.run_completed' AND o.payload->>'run_id' = r.id::text)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
