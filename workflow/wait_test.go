package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectflow/collection"
)

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t.Add(9 * time.Hour)
}

func TestNextActionDue(t *testing.T) {
	holidays, err := ParseCalendar([]string{"2025-03-17", "2025-03-19"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		from         string
		delay        int
		businessOnly bool
		cal          *Calendar
		want         string
	}{
		{"calendar days", "2025-03-12", 7, false, nil, "2025-03-19"},
		{"calendar days ignore holidays", "2025-03-12", 5, false, nil, "2025-03-17"},
		{"holiday pushes forward", "2025-03-12", 5, false, &holidays, "2025-03-18"},
		{"consecutive holidays", "2025-03-12", 7, false, &holidays, "2025-03-20"},
		{"business days skip weekend", "2025-03-12", 3, true, nil, "2025-03-17"},
		{"business days skip weekend and holiday", "2025-03-12", 3, true, &holidays, "2025-03-18"},
		{"zero delay", "2025-03-12", 0, true, &holidays, "2025-03-12"},
		{"from friday", "2025-03-14", 1, true, nil, "2025-03-17"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextActionDue(date(tt.from), tt.delay, tt.businessOnly, tt.cal)
			assert.Equal(t, date(tt.want), got)
		})
	}
}

func TestParseCalendarRejectsGarbage(t *testing.T) {
	_, err := ParseCalendar([]string{"17/03/2025"})
	assert.Error(t, err)
}

func TestWaitExecutorDefaultsToSevenDays(t *testing.T) {
	c := newCase("c1", collection.PriorityLow, days(2))
	store := newFakeCaseStore(c)
	rc := &RunContext{Case: &c, Workflow: Definition{ID: "w"}, Now: fixedClock}

	out, err := NewWaitExecutor(store, Calendar{}).Execute(context.Background(), Step{ID: "w", Kind: StepWait, Wait: &WaitConfig{}}, rc)
	require.NoError(t, err)

	want := testNow.AddDate(0, 0, 7)
	assert.Equal(t, 7, out["delay_days"])
	assert.Equal(t, want.Format(time.RFC3339), out["next_action_due"])
	require.NotNil(t, c.NextActionDue)
	assert.True(t, c.NextActionDue.Equal(want))
	stored := store.stored("c1")
	require.NotNil(t, stored.NextActionDue)
	assert.True(t, stored.NextActionDue.Equal(want))
}

func TestWaitExecutorUpdateFailure(t *testing.T) {
	c := newCase("c1", collection.PriorityLow, days(2))
	store := newFakeCaseStore(c)
	store.updateErr = errBoom
	rc := &RunContext{Case: &c, Workflow: Definition{ID: "w"}, Now: fixedClock}

	_, err := NewWaitExecutor(store, Calendar{}).Execute(context.Background(), Step{ID: "w", Kind: StepWait}, rc)
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, c.NextActionDue)
}
