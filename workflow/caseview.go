package workflow

import (
	"math"
	"strings"
	"time"

	"collectflow/collection"
)

// CaseView is the map projection of a case that conditions are evaluated
// against. Timestamps are RFC 3339 strings; absent optional fields are nil.
type CaseView map[string]any

// NewCaseView projects c as of now.
func NewCaseView(c collection.Case, now time.Time) CaseView {
	debtor := map[string]any{
		"id":                 c.Debtor.ID,
		"name":               c.Debtor.Name,
		"email":              c.Debtor.Email,
		"phone":              optString(c.Debtor.Phone),
		"preferred_language": c.Debtor.PreferredLanguage,
		"risk_profile":       c.Debtor.RiskProfile,
	}

	var nextDue any
	if c.NextActionDue != nil {
		nextDue = c.NextActionDue.UTC().Format(time.RFC3339)
	}

	return CaseView{
		"id":                   c.ID,
		"organization_id":      c.OrganizationID,
		"status":               string(c.Status),
		"priority":             string(c.Priority),
		"outstanding_amount":   c.OutstandingAmount,
		"current_stage":        c.CurrentStage,
		"assigned_to":          optString(c.AssignedTo),
		"next_action_due":      nextDue,
		"notes":                optString(c.Notes),
		"created_at":           c.CreatedAt.UTC().Format(time.RFC3339),
		"days_overdue":         DaysOverdue(c.CreatedAt, now),
		"communications_count": len(c.Communications),
		"debtor":               debtor,
	}
}

// Lookup walks a dot-separated path through nested maps.
func (v CaseView) Lookup(path string) (any, bool) {
	var cur any = map[string]any(v)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// DaysOverdue is the number of whole days between created and now.
func DaysOverdue(created, now time.Time) int {
	return int(math.Floor(now.Sub(created).Hours() / 24))
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
