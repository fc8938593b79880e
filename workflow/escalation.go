package workflow

import (
	"context"

	"collectflow/collection"
)

const eventCaseEscalated = "case_escalated"

// EscalationExecutor raises the case stage and reassigns or reprioritises it.
type EscalationExecutor struct {
	store interface {
		CaseUpdater
		AuditWriter
	}
}

func NewEscalationExecutor(store interface {
	CaseUpdater
	AuditWriter
}) *EscalationExecutor {
	return &EscalationExecutor{store: store}
}

// Execute applies the configured subset of stage, owner, priority and status.
// The stage is capped at the workflow's max_escalation_level and never lowered.
func (e *EscalationExecutor) Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error) {
	cfg := step.Escalation
	if cfg == nil {
		cfg = &EscalationConfig{}
	}
	c := rc.Case
	previousStage := c.CurrentStage

	var upd collection.CaseUpdate
	applied := map[string]any{}

	if cfg.EscalationLevel != nil {
		level := *cfg.EscalationLevel
		if ceiling := rc.Workflow.Settings.MaxEscalationLevel; ceiling > 0 && level > ceiling {
			level = ceiling
		}
		if level > previousStage {
			upd.CurrentStage = &level
		}
		applied["current_stage"] = max(level, previousStage)
	}
	if cfg.AssignTo != nil {
		upd.AssignedTo = cfg.AssignTo
		applied["assigned_to"] = *cfg.AssignTo
	}
	if cfg.Priority != nil {
		upd.Priority = cfg.Priority
		applied["priority"] = string(*cfg.Priority)
	}
	if cfg.Status != nil {
		upd.Status = cfg.Status
		applied["status"] = string(*cfg.Status)
	}

	if !upd.Empty() {
		if err := e.store.UpdateCase(ctx, c.ID, upd); err != nil {
			return nil, err
		}
		upd.Apply(c)
	}

	err := e.store.InsertAuditEvent(ctx, collection.AuditEvent{
		OrganizationID: c.OrganizationID,
		EventType:      eventCaseEscalated,
		EntityType:     "case",
		EntityID:       c.ID,
		ActorID:        rc.actor(),
		Properties: map[string]any{
			"previous_stage":  previousStage,
			"new_stage":       c.CurrentStage,
			"reason":          step.Name,
			"workflow_id":     rc.Workflow.ID,
			"workflow_run_id": rc.RunID,
			"step_id":         step.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	return applied, nil
}
