package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"collectflow/collection"
)

func TestEvaluateEmptyListHolds(t *testing.T) {
	assert.True(t, Evaluate(nil, CaseView{}))
	assert.True(t, Evaluate([]Condition{}, NewCaseView(newCase("c1", collection.PriorityLow, 0), testNow)))
}

func TestMissingFieldSemantics(t *testing.T) {
	view := NewCaseView(newCase("c1", collection.PriorityMedium, days(3)), testNow)
	values := []any{"resolved", 0, 12.5, true, nil}

	for _, v := range values {
		for _, field := range []string{"nonexistent", "debtor.missing", "status.deeper"} {
			assert.True(t, Condition{Field: field, Operator: OpNotEquals, Value: v}.Holds(view), "not_equals %s %v", field, v)
			assert.False(t, Condition{Field: field, Operator: OpEquals, Value: v}.Holds(view), "equals %s %v", field, v)
			assert.False(t, Condition{Field: field, Operator: OpGreaterThan, Value: v}.Holds(view))
			assert.False(t, Condition{Field: field, Operator: OpLessThan, Value: v}.Holds(view))
			assert.False(t, Condition{Field: field, Operator: OpContains, Value: v}.Holds(view))
		}
	}
	// A missing field is never stringified, so even a needle every string contains misses.
	for _, needle := range []any{"", "undefined", "null"} {
		assert.False(t, Condition{Field: "nonexistent", Operator: OpContains, Value: needle}.Holds(view), "contains %q", needle)
	}
}

func TestConditionOperators(t *testing.T) {
	c := newCase("c1", collection.PriorityHigh, days(40))
	owner := "agent-7"
	c.AssignedTo = &owner
	c.OutstandingAmount = 150
	view := NewCaseView(c, testNow)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{"status", OpEquals, "active"}, true},
		{"equals other string", Condition{"status", OpEquals, "resolved"}, false},
		{"not equals", Condition{"status", OpNotEquals, "resolved"}, true},
		{"equals int vs yaml int", Condition{"current_stage", OpEquals, 0}, true},
		{"equals float vs int", Condition{"outstanding_amount", OpEquals, 150}, true},
		{"equals is strict on type", Condition{"outstanding_amount", OpEquals, "150"}, false},
		{"nested equals", Condition{"debtor.risk_profile", OpEquals, "medium"}, true},
		{"nil field equals nil", Condition{"notes", OpEquals, nil}, true},
		{"nil field not equals string", Condition{"notes", OpNotEquals, "x"}, true},
		{"greater than", Condition{"days_overdue", OpGreaterThan, 30}, true},
		{"greater than equal bound", Condition{"days_overdue", OpGreaterThan, 40}, false},
		{"less than", Condition{"outstanding_amount", OpLessThan, 200.5}, true},
		{"numeric string coerces", Condition{"outstanding_amount", OpGreaterThan, "100"}, true},
		{"non numeric operand", Condition{"status", OpGreaterThan, 1}, false},
		{"contains number coerces", Condition{"outstanding_amount", OpContains, "5"}, true},
		{"contains substring", Condition{"assigned_to", OpContains, "agent"}, true},
		{"contains miss", Condition{"debtor.email", OpContains, "@corp"}, false},
		{"contains numeric needle", Condition{"debtor.email", OpContains, 7}, false},
		{"unknown operator", Condition{"status", Operator("matches"), "active"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Holds(view))
		})
	}
}

func TestEvaluateIsConjunction(t *testing.T) {
	view := NewCaseView(newCase("c1", collection.PriorityHigh, days(5)), testNow)

	assert.True(t, Evaluate([]Condition{
		{Field: "status", Operator: OpEquals, Value: "active"},
		{Field: "priority", Operator: OpEquals, Value: "high"},
	}, view))
	assert.False(t, Evaluate([]Condition{
		{Field: "status", Operator: OpEquals, Value: "active"},
		{Field: "priority", Operator: OpEquals, Value: "low"},
	}, view))
}

func TestCaseViewProjection(t *testing.T) {
	c := newCase("c1", collection.PriorityLow, days(10)+3*time.Hour)
	c.Communications = []collection.CommunicationSummary{{ID: "m1"}, {ID: "m2"}}
	view := NewCaseView(c, testNow)

	assert.Equal(t, 10, view["days_overdue"])
	assert.Equal(t, 2, view["communications_count"])
	assert.Nil(t, view["next_action_due"])
	v, ok := view.Lookup("debtor.name")
	assert.True(t, ok)
	assert.Equal(t, "Ada Lovelace", v)
}
