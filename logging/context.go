package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	caseIDKey ctxKey = iota
	workflowIDKey
	runIDKey
	stepIDKey
)

var correlationKeys = []struct {
	key  ctxKey
	attr string
}{
	{caseIDKey, "case_id"},
	{workflowIDKey, "workflow_id"},
	{runIDKey, "run_id"},
	{stepIDKey, "step_id"},
}

func WithCaseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, caseIDKey, id)
}

func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// CaseID extracts the case ID from the context, or "" if absent.
func CaseID(ctx context.Context) string {
	v, _ := ctx.Value(caseIDKey).(string)
	return v
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string {
	v, _ := ctx.Value(workflowIDKey).(string)
	return v
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// StepID extracts the step ID from the context, or "" if absent.
func StepID(ctx context.Context) string {
	v, _ := ctx.Value(stepIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler and adds the correlation IDs found
// in the record's context. Callers log with the *Context variants.
type CorrelationHandler struct {
	inner slog.Handler
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, k := range correlationKeys {
		if v, _ := ctx.Value(k.key).(string); v != "" {
			r.AddAttrs(slog.String(k.attr, v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
