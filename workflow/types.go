package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"collectflow/collection"
)

// StepKind tags the variant of a Step.
type StepKind string

const (
	StepCommunication StepKind = "communication"
	StepWait          StepKind = "wait"
	StepEscalation    StepKind = "escalation"
	StepAction        StepKind = "action"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

// Condition gates a step on a case field.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

type CommunicationConfig struct {
	CommunicationType string `json:"communication_type" yaml:"communication_type"`
	Channel           string `json:"channel,omitempty" yaml:"channel"`
	Tone              string `json:"tone,omitempty" yaml:"tone"`
	Language          string `json:"language,omitempty" yaml:"language"`
}

type WaitConfig struct {
	DelayDays *int `json:"delay_days,omitempty" yaml:"delay_days"`
}

type EscalationConfig struct {
	EscalationLevel *int                 `json:"escalation_level,omitempty" yaml:"escalation_level"`
	AssignTo        *string              `json:"assign_to,omitempty" yaml:"assign_to"`
	Priority        *collection.Priority `json:"priority,omitempty" yaml:"priority"`
	Status          *collection.Status   `json:"status,omitempty" yaml:"status"`
}

type ActionConfig struct {
	ActionType string         `json:"action_type" yaml:"action_type"`
	Params     map[string]any `json:"params,omitempty" yaml:"params"`
}

// Step is one automation unit. Exactly one config pointer, the one matching
// Kind, is set.
type Step struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Kind       StepKind    `json:"kind"`
	Conditions []Condition `json:"conditions,omitempty"`
	// When is an optional boolean expression over the case view, checked
	// after Conditions.
	When string `json:"when,omitempty"`

	Communication *CommunicationConfig `json:"communication,omitempty"`
	Wait          *WaitConfig          `json:"wait,omitempty"`
	Escalation    *EscalationConfig    `json:"escalation,omitempty"`
	Action        *ActionConfig        `json:"action,omitempty"`
}

// UnmarshalYAML decodes the kind-specific config block into its concrete type.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ID         string      `yaml:"id"`
		Name       string      `yaml:"name"`
		Kind       StepKind    `yaml:"kind"`
		Conditions []Condition `yaml:"conditions"`
		When       string      `yaml:"when"`
		Config     yaml.Node   `yaml:"config"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	step := Step{ID: raw.ID, Name: raw.Name, Kind: raw.Kind, Conditions: raw.Conditions, When: raw.When}
	hasConfig := raw.Config.Kind != 0

	var err error
	switch raw.Kind {
	case StepCommunication:
		step.Communication = &CommunicationConfig{}
		if hasConfig {
			err = raw.Config.Decode(step.Communication)
		}
	case StepWait:
		step.Wait = &WaitConfig{}
		if hasConfig {
			err = raw.Config.Decode(step.Wait)
		}
	case StepEscalation:
		step.Escalation = &EscalationConfig{}
		if hasConfig {
			err = raw.Config.Decode(step.Escalation)
		}
	case StepAction:
		step.Action = &ActionConfig{}
		if hasConfig {
			err = raw.Config.Decode(step.Action)
		}
	default:
		return fmt.Errorf("workflow: step %q: unknown kind %q", raw.ID, raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("workflow: step %q: decode %s config: %w", raw.ID, raw.Kind, err)
	}

	*s = step
	return nil
}

func (s Step) validate() error {
	if s.ID == "" {
		return fmt.Errorf("workflow: step missing id")
	}
	switch s.Kind {
	case StepCommunication:
		if s.Communication == nil || s.Communication.CommunicationType == "" {
			return fmt.Errorf("workflow: step %q: communication_type required", s.ID)
		}
	case StepWait:
		if s.Wait == nil {
			return fmt.Errorf("workflow: step %q: wait config required", s.ID)
		}
		if s.Wait.DelayDays != nil && *s.Wait.DelayDays < 0 {
			return fmt.Errorf("workflow: step %q: negative delay_days", s.ID)
		}
	case StepEscalation:
		if s.Escalation == nil {
			return fmt.Errorf("workflow: step %q: escalation config required", s.ID)
		}
		e := s.Escalation
		if e.Priority != nil && !e.Priority.Valid() {
			return fmt.Errorf("workflow: step %q: invalid priority %q", s.ID, *e.Priority)
		}
		if e.Status != nil && !e.Status.Valid() {
			return fmt.Errorf("workflow: step %q: invalid status %q", s.ID, *e.Status)
		}
	case StepAction:
		if s.Action == nil || s.Action.ActionType == "" {
			return fmt.Errorf("workflow: step %q: action_type required", s.ID)
		}
	default:
		return fmt.Errorf("workflow: step %q: unknown kind %q", s.ID, s.Kind)
	}
	for _, c := range s.Conditions {
		if c.Field == "" {
			return fmt.Errorf("workflow: step %q: condition missing field", s.ID)
		}
		if !c.Operator.valid() {
			return fmt.Errorf("workflow: step %q: unknown operator %q", s.ID, c.Operator)
		}
	}
	if s.When != "" {
		if _, err := whenPrograms.get(s.When); err != nil {
			return fmt.Errorf("workflow: step %q: %w", s.ID, err)
		}
	}
	return nil
}

// Settings tune how a definition runs.
type Settings struct {
	MaxEscalationLevel int  `json:"max_escalation_level" yaml:"max_escalation_level"`
	AutoStopOnPayment  bool `json:"auto_stop_on_payment" yaml:"auto_stop_on_payment"`
	RespectHolidays    bool `json:"respect_holidays" yaml:"respect_holidays"`
	BusinessDaysOnly   bool `json:"business_days_only" yaml:"business_days_only"`
}

// Definition is a named, ordered list of steps.
type Definition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	// TriggerConditions document when the selector picks this definition; the
	// runner does not re-check them.
	TriggerConditions []Condition `json:"trigger_conditions,omitempty" yaml:"trigger_conditions"`
	Settings          Settings    `json:"settings" yaml:"settings"`
	Steps             []Step      `json:"steps" yaml:"steps"`
}

// Summary is the catalog listing view of a definition.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	StepCount   int      `json:"step_count"`
	Settings    Settings `json:"settings"`
}

func (d Definition) Summary() Summary {
	return Summary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		StepCount:   len(d.Steps),
		Settings:    d.Settings,
	}
}

type StepOutcome string

const (
	OutcomeSuccess StepOutcome = "success"
	OutcomeError   StepOutcome = "error"
	OutcomeSkipped StepOutcome = "skipped"
)

const (
	SkipConditionsNotMet = "conditions_not_met"
	SkipAlreadyCompleted = "already_completed"
)

// StepResult is the immutable outcome of one step in one run.
type StepResult struct {
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name"`
	Kind       StepKind       `json:"kind"`
	Outcome    StepOutcome    `json:"outcome"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// Executed reports whether the step ran, successfully or not.
func (r StepResult) Executed() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeError
}

type RunStatus string

const (
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunStopped             RunStatus = "stopped"
	RunCanceled            RunStatus = "canceled"
)

// RunRecord summarises one Execute call for one case.
type RunRecord struct {
	ID             string       `json:"id"`
	WorkflowID     string       `json:"workflow_id"`
	WorkflowName   string       `json:"workflow_name"`
	CaseID         string       `json:"case_id"`
	OrganizationID string       `json:"organization_id"`
	ActorID        string       `json:"actor_id,omitempty"`
	StepsExecuted  int          `json:"steps_executed"`
	Results        []StepResult `json:"results"`
	Status         RunStatus    `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}
