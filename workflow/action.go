package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"collectflow/collection"
)

const (
	ActionUpdateRiskRating = "update_risk_rating"
	ActionNotifyManager    = "notify_manager"
	ActionGenerateReport   = "generate_report"
	ActionResolveCase      = "resolve_case"
)

const (
	TopicManagerNotification = "case.manager_notification"
	eventReportRequested     = "report_requested"
	defaultRiskProfile       = "high"
	defaultReportType        = "case_summary"
)

type actionFunc func(ctx context.Context, step Step, params map[string]any, rc *RunContext) (map[string]any, error)

// ActionExecutor dispatches custom actions by action_type.
type ActionExecutor struct {
	store   ActionStore
	newID   func() string
	actions map[string]actionFunc
}

func NewActionExecutor(store ActionStore) *ActionExecutor {
	e := &ActionExecutor{store: store, newID: uuid.NewString}
	e.actions = map[string]actionFunc{
		ActionUpdateRiskRating: e.updateRiskRating,
		ActionNotifyManager:    e.notifyManager,
		ActionGenerateReport:   e.generateReport,
		ActionResolveCase:      e.resolveCase,
	}
	return e
}

// WithIDGenerator overrides report id generation.
func (e *ActionExecutor) WithIDGenerator(gen func() string) *ActionExecutor {
	e.newID = gen
	return e
}

func (e *ActionExecutor) Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error) {
	if step.Action == nil {
		return nil, fmt.Errorf("workflow: action config missing")
	}
	fn, ok := e.actions[step.Action.ActionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, step.Action.ActionType)
	}
	params := step.Action.Params
	if params == nil {
		params = map[string]any{}
	}
	result, err := fn(ctx, step, params, rc)
	if err != nil {
		return nil, err
	}
	result["action_type"] = step.Action.ActionType
	return result, nil
}

func (e *ActionExecutor) updateRiskRating(ctx context.Context, _ Step, params map[string]any, rc *RunContext) (map[string]any, error) {
	risk := cast.ToString(params["risk_profile"])
	if risk == "" {
		risk = defaultRiskProfile
	}
	previous := rc.Case.Debtor.RiskProfile
	if err := e.store.UpdateDebtorRisk(ctx, rc.Case.DebtorID, risk); err != nil {
		return nil, err
	}
	rc.Case.Debtor.RiskProfile = risk
	return map[string]any{
		"previous_risk_profile": previous,
		"risk_profile":          risk,
	}, nil
}

func (e *ActionExecutor) notifyManager(ctx context.Context, step Step, params map[string]any, rc *RunContext) (map[string]any, error) {
	c := rc.Case
	err := e.store.EnqueueNotification(ctx, collection.Notification{
		OrganizationID: c.OrganizationID,
		CaseID:         c.ID,
		Topic:          TopicManagerNotification,
		Payload: map[string]any{
			"workflow_id":        rc.Workflow.ID,
			"workflow_run_id":    rc.RunID,
			"step_id":            step.ID,
			"message":            cast.ToString(params["message"]),
			"priority":           string(c.Priority),
			"current_stage":      c.CurrentStage,
			"outstanding_amount": c.OutstandingAmount,
		},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"topic": TopicManagerNotification}, nil
}

func (e *ActionExecutor) generateReport(ctx context.Context, step Step, params map[string]any, rc *RunContext) (map[string]any, error) {
	reportType := cast.ToString(params["report_type"])
	if reportType == "" {
		reportType = defaultReportType
	}
	reportID := e.newID()

	c := rc.Case
	err := e.store.InsertAuditEvent(ctx, collection.AuditEvent{
		OrganizationID: c.OrganizationID,
		EventType:      eventReportRequested,
		EntityType:     "case",
		EntityID:       c.ID,
		ActorID:        rc.actor(),
		Properties: map[string]any{
			"report_id":       reportID,
			"report_type":     reportType,
			"workflow_id":     rc.Workflow.ID,
			"workflow_run_id": rc.RunID,
			"step_id":         step.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"report_id": reportID, "report_type": reportType}, nil
}

func (e *ActionExecutor) resolveCase(ctx context.Context, _ Step, _ map[string]any, rc *RunContext) (map[string]any, error) {
	status := collection.StatusResolved
	upd := collection.CaseUpdate{Status: &status}
	if err := e.store.UpdateCase(ctx, rc.Case.ID, upd); err != nil {
		return nil, err
	}
	upd.Apply(rc.Case)
	return map[string]any{"status": string(status)}, nil
}
