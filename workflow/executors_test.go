package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectflow/collection"
	"collectflow/generator"
)

func runContext(c *collection.Case, def Definition) *RunContext {
	return &RunContext{Case: c, Workflow: def, RunID: "run-1", ActorID: "user-1", Now: fixedClock}
}

func TestCommunicationExecutorRecordsDraft(t *testing.T) {
	c := newCase("c1", collection.PriorityMedium, days(12))
	c.Debtor.PreferredLanguage = "es"
	store := newFakeCaseStore(c)
	gen := newStubGenerator()
	exec := NewCommunicationExecutor(store, gen, time.Second)

	step := Step{ID: "first_reminder", Kind: StepCommunication, Communication: &CommunicationConfig{
		CommunicationType: "payment_reminder", Tone: "friendly",
	}}
	out, err := exec.Execute(context.Background(), step, runContext(&c, Definition{ID: StandardWorkflowID}))
	require.NoError(t, err)

	assert.Equal(t, "comm-1", out["communication_id"])
	assert.Equal(t, true, out["success"])
	assert.InDelta(t, 0.002, out["generation_cost"], 1e-9)

	reqs := gen.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, generator.Simple, reqs[0].Complexity)
	assert.Equal(t, "es", reqs[0].Options.Language)
	assert.Equal(t, "friendly", reqs[0].Options.Tone)
	assert.Equal(t, 12, reqs[0].Prompt.DaysOverdue)

	require.Len(t, store.communications, 1)
	comm := store.communications[0]
	assert.Equal(t, "email", comm.Channel)
	assert.Equal(t, collection.DirectionOutbound, comm.Direction)
	assert.Equal(t, collection.CommStatusQueued, comm.Status)
	assert.True(t, comm.AIGenerated)
	assert.Equal(t, "Payment reminder", comm.Subject)
	assert.Equal(t, "first_reminder", comm.Metadata["workflow_step_id"])
	assert.Equal(t, "stub-small", comm.Metadata["ai_model"])

	require.Len(t, store.costs, 1)
	assert.Equal(t, 140, store.costs[0].TotalTokens)
	assert.Len(t, c.Communications, 1)
}

func TestCommunicationExecutorLanguageOverrideAndComplexity(t *testing.T) {
	c := newCase("c1", collection.PriorityMedium, days(1))
	c.Debtor.PreferredLanguage = ""
	gen := newStubGenerator()
	exec := NewCommunicationExecutor(newFakeCaseStore(c), gen, 0)

	_, err := exec.Execute(context.Background(), Step{ID: "s", Kind: StepCommunication, Communication: &CommunicationConfig{
		CommunicationType: "final_notice", Language: "fr",
	}}, runContext(&c, Definition{}))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), Step{ID: "s2", Kind: StepCommunication, Communication: &CommunicationConfig{
		CommunicationType: "initial_notice",
	}}, runContext(&c, Definition{}))
	require.NoError(t, err)

	reqs := gen.calls()
	assert.Equal(t, generator.Complex, reqs[0].Complexity)
	assert.Equal(t, "fr", reqs[0].Options.Language)
	assert.Equal(t, "en", reqs[1].Options.Language)
	assert.Equal(t, "professional", reqs[1].Options.Tone)
}

func TestCommunicationExecutorUnparseableDraft(t *testing.T) {
	c := newCase("c1", collection.PriorityMedium, days(1))
	store := newFakeCaseStore(c)
	gen := newStubGenerator()
	gen.content = "Dear debtor, pay now."

	_, err := NewCommunicationExecutor(store, gen, time.Second).Execute(context.Background(),
		Step{ID: "s", Kind: StepCommunication, Communication: &CommunicationConfig{CommunicationType: "payment_reminder"}},
		runContext(&c, Definition{}))
	assert.ErrorIs(t, err, generator.ErrInvalidDraft)
	assert.Empty(t, store.communications)
	assert.Empty(t, store.costs)
}

func TestCommunicationExecutorTimeout(t *testing.T) {
	c := newCase("c1", collection.PriorityMedium, days(1))
	store := newFakeCaseStore(c)
	gen := newStubGenerator()
	gen.block = true

	_, err := NewCommunicationExecutor(store, gen, 20*time.Millisecond).Execute(context.Background(),
		Step{ID: "s", Kind: StepCommunication, Communication: &CommunicationConfig{CommunicationType: "payment_reminder"}},
		runContext(&c, Definition{}))
	assert.ErrorIs(t, err, ErrGeneratorTimeout)
	assert.Empty(t, store.communications)
}

func TestEscalationExecutorClampsAndAudits(t *testing.T) {
	c := newCase("c1", collection.PriorityMedium, days(40))
	c.CurrentStage = 1
	store := newFakeCaseStore(c)
	level := 5
	high := collection.PriorityHigh
	def := Definition{ID: EscalatedWorkflowID, Settings: Settings{MaxEscalationLevel: 2}}

	out, err := NewEscalationExecutor(store).Execute(context.Background(), Step{
		ID: "esc", Name: "Escalate to stage 2", Kind: StepEscalation,
		Escalation: &EscalationConfig{EscalationLevel: &level, Priority: &high},
	}, runContext(&c, def))
	require.NoError(t, err)

	assert.Equal(t, 2, out["current_stage"])
	assert.Equal(t, "high", out["priority"])
	assert.Equal(t, 2, c.CurrentStage)
	assert.Equal(t, collection.PriorityHigh, c.Priority)
	assert.Equal(t, 2, store.stored("c1").CurrentStage)

	require.Len(t, store.audit, 1)
	ev := store.audit[0]
	assert.Equal(t, eventCaseEscalated, ev.EventType)
	assert.Equal(t, 1, ev.Properties["previous_stage"])
	assert.Equal(t, 2, ev.Properties["new_stage"])
	assert.Equal(t, "Escalate to stage 2", ev.Properties["reason"])
	require.NotNil(t, ev.ActorID)
	assert.Equal(t, "user-1", *ev.ActorID)
}

func TestEscalationExecutorNeverLowersStage(t *testing.T) {
	c := newCase("c1", collection.PriorityCritical, days(1))
	c.CurrentStage = 3
	store := newFakeCaseStore(c)
	level := 2

	out, err := NewEscalationExecutor(store).Execute(context.Background(), Step{
		ID: "esc", Kind: StepEscalation, Escalation: &EscalationConfig{EscalationLevel: &level},
	}, runContext(&c, Definition{}))
	require.NoError(t, err)
	assert.Equal(t, 3, out["current_stage"])
	assert.Equal(t, 3, c.CurrentStage)
	assert.Empty(t, store.updates)
	assert.Equal(t, 3, store.audit[0].Properties["new_stage"])
}

func TestActionExecutor(t *testing.T) {
	t.Run("update risk rating defaults to high", func(t *testing.T) {
		c := newCase("c1", collection.PriorityLow, days(1))
		store := newFakeCaseStore(c)
		out, err := NewActionExecutor(store).Execute(context.Background(),
			Step{ID: "a", Kind: StepAction, Action: &ActionConfig{ActionType: ActionUpdateRiskRating}}, runContext(&c, Definition{}))
		require.NoError(t, err)
		assert.Equal(t, "high", out["risk_profile"])
		assert.Equal(t, "medium", out["previous_risk_profile"])
		assert.Equal(t, "high", c.Debtor.RiskProfile)
		assert.Equal(t, "high", store.stored("c1").Debtor.RiskProfile)
	})

	t.Run("notify manager enqueues", func(t *testing.T) {
		c := newCase("c1", collection.PriorityLow, days(1))
		store := newFakeCaseStore(c)
		_, err := NewActionExecutor(store).Execute(context.Background(),
			Step{ID: "a", Kind: StepAction, Action: &ActionConfig{ActionType: ActionNotifyManager, Params: map[string]any{"message": "hi"}}},
			runContext(&c, Definition{ID: "w"}))
		require.NoError(t, err)
		require.Len(t, store.notifications, 1)
		assert.Equal(t, TopicManagerNotification, store.notifications[0].Topic)
		assert.Equal(t, "hi", store.notifications[0].Payload["message"])
	})

	t.Run("generate report marker", func(t *testing.T) {
		c := newCase("c1", collection.PriorityLow, days(1))
		store := newFakeCaseStore(c)
		exec := NewActionExecutor(store).WithIDGenerator(func() string { return "report-1" })
		out, err := exec.Execute(context.Background(),
			Step{ID: "a", Kind: StepAction, Action: &ActionConfig{ActionType: ActionGenerateReport, Params: map[string]any{"report_type": "legal_review"}}},
			runContext(&c, Definition{}))
		require.NoError(t, err)
		assert.Equal(t, "report-1", out["report_id"])
		assert.Equal(t, ActionGenerateReport, out["action_type"])
		require.Len(t, store.audit, 1)
		assert.Equal(t, "legal_review", store.audit[0].Properties["report_type"])
	})

	t.Run("resolve case", func(t *testing.T) {
		c := newCase("c1", collection.PriorityLow, days(1))
		store := newFakeCaseStore(c)
		_, err := NewActionExecutor(store).Execute(context.Background(),
			Step{ID: "a", Kind: StepAction, Action: &ActionConfig{ActionType: ActionResolveCase}}, runContext(&c, Definition{}))
		require.NoError(t, err)
		assert.Equal(t, collection.StatusResolved, c.Status)
	})

	t.Run("unknown action fails", func(t *testing.T) {
		c := newCase("c1", collection.PriorityLow, days(1))
		_, err := NewActionExecutor(newFakeCaseStore(c)).Execute(context.Background(),
			Step{ID: "a", Kind: StepAction, Action: &ActionConfig{ActionType: "send_fax"}}, runContext(&c, Definition{}))
		assert.ErrorIs(t, err, ErrUnknownAction)
	})
}
