package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectflow/collection"
)

func TestEvaluateWhen(t *testing.T) {
	view := NewCaseView(newCase("c1", collection.PriorityHigh, days(40)), testNow)

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"outstanding_amount > 100", true},
		{"outstanding_amount > 1000", false},
		{`debtor.risk_profile == "medium" && days_overdue >= 40`, true},
		{`priority in ["high", "critical"]`, true},
		{"communications_count == 0", true},
		{"assigned_to == nil", true},
		{"undefined_field == nil", true},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := EvaluateWhen(tc.expr, view)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateWhenErrors(t *testing.T) {
	view := NewCaseView(newCase("c1", collection.PriorityLow, 0), testNow)

	_, err := EvaluateWhen("outstanding_amount >", view)
	assert.Error(t, err, "syntax error")

	_, err = EvaluateWhen(`status + 1 > 0`, view)
	assert.Error(t, err, "runtime type error")

	_, err = EvaluateWhen("status", view)
	assert.Error(t, err, "non-bool result")
}

func TestCatalogRejectsBadWhen(t *testing.T) {
	_, err := LoadCatalog([]byte(`
workflows:
  - id: broken
    name: Broken
    steps:
      - id: s1
        name: S1
        kind: wait
        when: "days_overdue >>> 3"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "s1"`)
}

func TestRunnerWhenGatesStep(t *testing.T) {
	cat, err := LoadCatalog([]byte(`
workflows:
  - id: gated
    name: Gated
    steps:
      - id: big_balance_wait
        name: Big balance wait
        kind: wait
        when: "outstanding_amount >= 1000"
        config:
          delay_days: 3
      - id: small_balance_wait
        name: Small balance wait
        kind: wait
        when: "outstanding_amount < 1000"
        config:
          delay_days: 1
      - id: broken_gate
        name: Broken gate
        kind: wait
        when: "status"
`))
	require.NoError(t, err)

	f := newRunnerFixture(t, cat, newCase("c1", collection.PriorityMedium, days(2)))
	run, err := f.runner.Execute(context.Background(), ExecuteRequest{CaseID: "c1", WorkflowID: "gated"})
	require.NoError(t, err)

	got := outcomes(run)
	assert.Equal(t, OutcomeSkipped, got["big_balance_wait"])
	assert.Equal(t, OutcomeSuccess, got["small_balance_wait"])
	assert.Equal(t, OutcomeError, got["broken_gate"])
	assert.Equal(t, RunCompletedWithErrors, run.Status)
	assert.Equal(t, SkipConditionsNotMet, run.Results[0].SkipReason)
}
