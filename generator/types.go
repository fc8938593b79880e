package generator

import "context"

// Complexity hints the provider router toward a cheaper or a stronger model.
type Complexity string

const (
	Simple  Complexity = "simple"
	Complex Complexity = "complex"
)

// HintFor returns the complexity for a communication type: escalation and
// final notices go to the stronger model.
func HintFor(communicationType string) Complexity {
	switch communicationType {
	case "escalation_notice", "final_notice":
		return Complex
	default:
		return Simple
	}
}

// PromptContext is the case snapshot a draft is written from.
type PromptContext struct {
	CaseID                 string  `json:"case_id"`
	CommunicationType      string  `json:"communication_type"`
	DebtorName             string  `json:"debtor_name"`
	OutstandingAmount      float64 `json:"outstanding_amount"`
	DaysOverdue            int     `json:"days_overdue"`
	CurrentStage           int     `json:"current_stage"`
	Priority               string  `json:"priority"`
	Status                 string  `json:"status"`
	PreviousCommunications int     `json:"previous_communications"`
}

type Options struct {
	Language string `json:"language"`
	Tone     string `json:"tone"`
}

type Request struct {
	Complexity Complexity    `json:"complexity"`
	Prompt     PromptContext `json:"prompt"`
	Options    Options       `json:"options"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response carries the raw generated content; callers run it through
// ParseDraft before using it.
type Response struct {
	Content string  `json:"content"`
	Model   string  `json:"model"`
	Usage   Usage   `json:"usage"`
	Cost    float64 `json:"cost"`
}

// Generator drafts communication text.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
