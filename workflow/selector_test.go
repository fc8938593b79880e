package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectflow/collection"
)

func mustDefaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func TestSelectorCascade(t *testing.T) {
	sel := NewSelector(mustDefaultCatalog(t)).WithClock(fixedClock)

	tests := []struct {
		name     string
		priority collection.Priority
		age      time.Duration
		want     string
	}{
		{"fresh medium", collection.PriorityMedium, days(10), StandardWorkflowID},
		{"fresh high stays standard", collection.PriorityHigh, days(10), StandardWorkflowID},
		{"exactly 30 days", collection.PriorityLow, days(30), StandardWorkflowID},
		{"30 days and 23 hours", collection.PriorityLow, days(30) + 23*time.Hour, StandardWorkflowID},
		{"31 days", collection.PriorityLow, days(31), EscalatedWorkflowID},
		{"old high", collection.PriorityHigh, days(60), EscalatedWorkflowID},
		{"fresh critical", collection.PriorityCritical, days(10), UrgentWorkflowID},
		{"brand new critical", collection.PriorityCritical, 0, UrgentWorkflowID},
		{"old critical hits rule two", collection.PriorityCritical, days(45), EscalatedWorkflowID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := sel.Select(newCase("c1", tt.priority, tt.age))
			require.NoError(t, err)
			assert.Equal(t, tt.want, def.ID)
		})
	}
}

func TestSelectorDeterministic(t *testing.T) {
	sel := NewSelector(mustDefaultCatalog(t)).WithClock(fixedClock)
	c := newCase("c1", collection.PriorityHigh, days(31))
	first := sel.SelectID(c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, sel.SelectID(c))
	}
}

func TestSelectorMissingDefinition(t *testing.T) {
	cat, err := NewCatalog(Definition{ID: StandardWorkflowID, Name: "Standard"})
	require.NoError(t, err)
	sel := NewSelector(cat).WithClock(fixedClock)

	_, err = sel.Select(newCase("c1", collection.PriorityCritical, days(1)))
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
