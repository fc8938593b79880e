package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrCaseNotFound is returned when the case does not exist or belongs to
	// another organization.
	ErrCaseNotFound = errors.New("workflow: case not found")
	// ErrWorkflowNotFound is returned for an unrecognised workflow id.
	ErrWorkflowNotFound = errors.New("workflow: workflow not found")
	// ErrCaseLocked is returned when another run holds the case. Callers may retry.
	ErrCaseLocked = errors.New("workflow: case locked")
	// ErrUnknownAction is returned by the action executor for an unregistered action_type.
	ErrUnknownAction = errors.New("workflow: unknown action type")
	// ErrGeneratorTimeout is returned when the content generator exceeds its deadline.
	ErrGeneratorTimeout = errors.New("workflow: content generator timed out")
	// ErrNoExecutor is returned when no executor is registered for a step kind.
	ErrNoExecutor = errors.New("workflow: no executor for step kind")
)

// StepExecutionError records a step-scoped failure. The runner appends it to
// the run as an error result and moves on.
type StepExecutionError struct {
	StepID string
	Kind   StepKind
	Cause  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("workflow: step %s (%s): %v", e.StepID, e.Kind, e.Cause)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Cause
}
