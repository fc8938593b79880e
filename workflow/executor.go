package workflow

import (
	"context"
	"time"

	"collectflow/collection"
)

// RunContext is the mutable state shared by the steps of one run. Executors
// write case changes through to the store and mirror them onto Case so later
// condition checks see them.
type RunContext struct {
	Case     *collection.Case
	Workflow Definition
	RunID    string
	ActorID  string
	Now      func() time.Time
}

func (rc *RunContext) actor() *string {
	if rc.ActorID == "" {
		return nil
	}
	id := rc.ActorID
	return &id
}

// StepExecutor runs one kind of step and returns its success payload.
type StepExecutor interface {
	Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error)
}

// StepExecutorFunc adapts a function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, step Step, rc *RunContext) (map[string]any, error)

func (f StepExecutorFunc) Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error) {
	return f(ctx, step, rc)
}

// CaseUpdater persists case field changes.
type CaseUpdater interface {
	UpdateCase(ctx context.Context, id string, upd collection.CaseUpdate) error
}

// CommunicationRecorder stores a drafted communication with its cost row.
type CommunicationRecorder interface {
	RecordCommunication(ctx context.Context, comm collection.Communication, cost collection.CostRecord) (string, error)
}

type AuditWriter interface {
	InsertAuditEvent(ctx context.Context, ev collection.AuditEvent) error
}

// ActionStore covers the side effects custom actions may perform.
type ActionStore interface {
	CaseUpdater
	AuditWriter
	UpdateDebtorRisk(ctx context.Context, debtorID, riskProfile string) error
	EnqueueNotification(ctx context.Context, n collection.Notification) error
}

// CaseStore is everything the runner and the default executors need from the
// case store.
type CaseStore interface {
	ActionStore
	CommunicationRecorder
	GetCase(ctx context.Context, id string) (collection.Case, error)
}
