package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrCaseNotFound is returned when no case row exists for the identifier.
	ErrCaseNotFound = errors.New("collection: case not found")
	// ErrDebtorNotFound is returned when a debtor update matches no row.
	ErrDebtorNotFound = errors.New("collection: debtor not found")
)

// recentCommunications bounds how many prior communications are loaded with a case.
const recentCommunications = 20

// PGRepository is the Postgres-backed case store.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetCase loads a case with its debtor and most recent communications.
func (r *PGRepository) GetCase(ctx context.Context, id string) (Case, error) {
	if !validID(id) {
		return Case{}, ErrCaseNotFound
	}
	const query = `
		SELECT c.id::text, c.organization_id::text, c.debtor_id::text, c.status, c.priority,
		       c.outstanding_amount, c.current_stage, c.assigned_to, c.next_action_due, c.notes,
		       c.created_at, c.updated_at,
		       d.name, d.email, d.phone, d.preferred_language, d.risk_profile
		FROM cases c
		JOIN debtors d ON d.id = c.debtor_id
		WHERE c.id = $1
	`

	var c Case
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.OrganizationID,
		&c.DebtorID,
		&c.Status,
		&c.Priority,
		&c.OutstandingAmount,
		&c.CurrentStage,
		&c.AssignedTo,
		&c.NextActionDue,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Debtor.Name,
		&c.Debtor.Email,
		&c.Debtor.Phone,
		&c.Debtor.PreferredLanguage,
		&c.Debtor.RiskProfile,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, fmt.Errorf("collection: get case: %w", err)
	}
	c.Debtor.ID = c.DebtorID

	comms, err := r.listCommunications(ctx, id)
	if err != nil {
		return Case{}, err
	}
	c.Communications = comms

	return c, nil
}

func (r *PGRepository) listCommunications(ctx context.Context, caseID string) ([]CommunicationSummary, error) {
	const query = `
		SELECT id::text, channel, COALESCE(metadata->>'communication_type', ''), status, created_at
		FROM communication_logs
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, caseID, recentCommunications)
	if err != nil {
		return nil, fmt.Errorf("collection: list communications: %w", err)
	}
	defer rows.Close()

	out := make([]CommunicationSummary, 0, 8)
	for rows.Next() {
		var s CommunicationSummary
		if err := rows.Scan(&s.ID, &s.Channel, &s.CommunicationType, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("collection: scan communication: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collection: iterate communications: %w", err)
	}
	return out, nil
}

// UpdateCase writes the non-nil fields of upd. The stage is only ever raised.
func (r *PGRepository) UpdateCase(ctx context.Context, id string, upd CaseUpdate) error {
	if upd.Empty() {
		return nil
	}
	if !validID(id) {
		return ErrCaseNotFound
	}

	const query = `
		UPDATE cases
		SET status          = COALESCE($2, status),
		    priority        = COALESCE($3, priority),
		    current_stage   = GREATEST(current_stage, COALESCE($4, current_stage)),
		    assigned_to     = COALESCE($5, assigned_to),
		    next_action_due = COALESCE($6, next_action_due),
		    updated_at      = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, upd.Status, upd.Priority, upd.CurrentStage, upd.AssignedTo, upd.NextActionDue)
	if err != nil {
		return fmt.Errorf("collection: update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// UpdateDebtorRisk sets the risk profile on a debtor.
func (r *PGRepository) UpdateDebtorRisk(ctx context.Context, debtorID, riskProfile string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE debtors SET risk_profile = $2, updated_at = now() WHERE id = $1`, debtorID, riskProfile)
	if err != nil {
		return fmt.Errorf("collection: update debtor risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDebtorNotFound
	}
	return nil
}

// RecordCommunication inserts the drafted communication and its cost row in a
// single transaction and returns the communication id.
func (r *PGRepository) RecordCommunication(ctx context.Context, comm Communication, cost CostRecord) (string, error) {
	metadata, err := json.Marshal(nonNil(comm.Metadata))
	if err != nil {
		return "", fmt.Errorf("collection: marshal communication metadata: %w", err)
	}
	costMetadata, err := json.Marshal(nonNil(cost.Metadata))
	if err != nil {
		return "", fmt.Errorf("collection: marshal cost metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertComm = `
		INSERT INTO communication_logs (organization_id, case_id, channel, direction, status, subject, content, ai_generated, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		RETURNING id::text
	`
	var id string
	if err := tx.QueryRow(ctx, insertComm,
		comm.OrganizationID,
		comm.CaseID,
		comm.Channel,
		comm.Direction,
		comm.Status,
		comm.Subject,
		comm.Content,
		comm.AIGenerated,
		metadata,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("collection: insert communication: %w", err)
	}

	const insertCost = `
		INSERT INTO ai_cost_tracking (organization_id, case_id, communication_id, interaction_type, model_used,
		                              prompt_tokens, completion_tokens, total_tokens, cost_usd, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
	`
	if _, err := tx.Exec(ctx, insertCost,
		cost.OrganizationID,
		cost.CaseID,
		id,
		cost.InteractionType,
		cost.ModelUsed,
		cost.PromptTokens,
		cost.CompletionTokens,
		cost.TotalTokens,
		cost.CostUSD,
		costMetadata,
	); err != nil {
		return "", fmt.Errorf("collection: insert cost record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("collection: commit communication: %w", err)
	}
	return id, nil
}

// InsertAuditEvent appends an analytics/audit event.
func (r *PGRepository) InsertAuditEvent(ctx context.Context, ev AuditEvent) error {
	body, err := json.Marshal(nonNil(ev.Properties))
	if err != nil {
		return fmt.Errorf("collection: marshal audit properties: %w", err)
	}
	var actor any
	if ev.ActorID != nil && *ev.ActorID != "" {
		actor = *ev.ActorID
	}
	const q = `
		INSERT INTO analytics_events (organization_id, event_type, entity_type, entity_id, actor_id, properties)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`
	if _, err := r.pool.Exec(ctx, q, ev.OrganizationID, ev.EventType, ev.EntityType, ev.EntityID, actor, body); err != nil {
		return fmt.Errorf("collection: insert audit event: %w", err)
	}
	return nil
}

// EnqueueNotification writes a message to the transactional outbox.
func (r *PGRepository) EnqueueNotification(ctx context.Context, n Notification) error {
	payload := make(map[string]any, len(n.Payload)+2)
	for k, v := range n.Payload {
		payload[k] = v
	}
	payload["organization_id"] = n.OrganizationID
	payload["case_id"] = n.CaseID

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("collection: marshal outbox payload: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, n.Topic, body); err != nil {
		return fmt.Errorf("collection: enqueue outbox: %w", err)
	}
	return nil
}

// ListDueCases returns open cases whose next action is due at now and that
// have not been run since it fell due.
func (r *PGRepository) ListDueCases(ctx context.Context, now time.Time, limit int) ([]DueCase, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `
		SELECT c.id::text, c.organization_id::text, c.next_action_due
		FROM cases c
		WHERE c.status IN ('active', 'escalated')
		  AND c.next_action_due IS NOT NULL
		  AND c.next_action_due <= $1
		  AND NOT EXISTS (
		      SELECT 1 FROM workflow_runs wr
		      WHERE wr.case_id = c.id AND wr.started_at >= c.next_action_due
		  )
		ORDER BY c.next_action_due ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("collection: list due cases: %w", err)
	}
	defer rows.Close()

	out := make([]DueCase, 0, limit)
	for rows.Next() {
		var d DueCase
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.NextActionDue); err != nil {
			return nil, fmt.Errorf("collection: scan due case: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collection: iterate due cases: %w", err)
	}
	return out, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// validID reports whether id can be bound to a uuid column. Anything else
// cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
