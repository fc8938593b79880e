package collection

import "time"

// Status is the collections lifecycle state of a case.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusEscalated Status = "escalated"
	StatusLegal     Status = "legal"
	StatusResolved  Status = "resolved"
)

// Valid reports whether s is one of the known case statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusEscalated, StatusLegal, StatusResolved:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Debtor mirrors the debtors table columns read alongside a case.
type Debtor struct {
	ID                string
	Name              string
	Email             string
	Phone             *string
	PreferredLanguage string
	RiskProfile       string
}

// CommunicationSummary is the slice of a prior communication loaded with a case.
type CommunicationSummary struct {
	ID                string
	Channel           string
	CommunicationType string
	Status            string
	CreatedAt         time.Time
}

// Case is a collection account together with its debtor and recent communications.
type Case struct {
	ID                string
	OrganizationID    string
	DebtorID          string
	Status            Status
	Priority          Priority
	OutstandingAmount float64
	CurrentStage      int
	AssignedTo        *string
	NextActionDue     *time.Time
	Notes             *string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Debtor         Debtor
	Communications []CommunicationSummary
}

// CaseUpdate enumerates the case fields the engine may write. Nil fields are
// left untouched.
type CaseUpdate struct {
	Status        *Status
	Priority      *Priority
	CurrentStage  *int
	AssignedTo    *string
	NextActionDue *time.Time
}

// Empty reports whether the update carries no field.
func (u CaseUpdate) Empty() bool {
	return u.Status == nil && u.Priority == nil && u.CurrentStage == nil && u.AssignedTo == nil && u.NextActionDue == nil
}

// Apply mirrors the update onto an in-memory case using the same rules as the
// repository: the stage never decreases.
func (u CaseUpdate) Apply(c *Case) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Priority != nil {
		c.Priority = *u.Priority
	}
	if u.CurrentStage != nil && *u.CurrentStage > c.CurrentStage {
		c.CurrentStage = *u.CurrentStage
	}
	if u.AssignedTo != nil {
		owner := *u.AssignedTo
		c.AssignedTo = &owner
	}
	if u.NextActionDue != nil {
		due := *u.NextActionDue
		c.NextActionDue = &due
	}
}

const (
	DirectionOutbound = "outbound"
	CommStatusQueued  = "queued"
)

// Communication is an outbound message drafted for a case.
type Communication struct {
	ID             string
	OrganizationID string
	CaseID         string
	Channel        string
	Direction      string
	Status         string
	Subject        string
	Content        string
	AIGenerated    bool
	Metadata       map[string]any
	CreatedAt      time.Time
}

// CostRecord captures token usage and spend for one AI interaction.
type CostRecord struct {
	OrganizationID   string
	CaseID           string
	InteractionType  string
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	Metadata         map[string]any
}

// AuditEvent is an append-only analytics/audit row.
type AuditEvent struct {
	OrganizationID string
	EventType      string
	EntityType     string
	EntityID       string
	ActorID        *string
	Properties     map[string]any
}

// Notification is delivered through the transactional outbox.
type Notification struct {
	OrganizationID string
	CaseID         string
	Topic          string
	Payload        map[string]any
}

// DueCase identifies a case whose next action is due.
type DueCase struct {
	ID             string
	OrganizationID string
	NextActionDue  time.Time
}
