package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collectflow/collection"
	"collectflow/generator"
)

const (
	defaultChannel  = "email"
	defaultTone     = "professional"
	defaultLanguage = "en"

	interactionCommunication = "communication_generation"
)

// CommunicationExecutor drafts a message with the content generator and
// queues it on the case.
type CommunicationExecutor struct {
	store   CommunicationRecorder
	gen     generator.Generator
	timeout time.Duration
}

// NewCommunicationExecutor builds the executor. A zero timeout leaves the
// generator call bounded only by ctx.
func NewCommunicationExecutor(store CommunicationRecorder, gen generator.Generator, timeout time.Duration) *CommunicationExecutor {
	return &CommunicationExecutor{store: store, gen: gen, timeout: timeout}
}

func (e *CommunicationExecutor) Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error) {
	cfg := step.Communication
	if cfg == nil {
		return nil, fmt.Errorf("workflow: communication config missing")
	}
	c := rc.Case

	channel := firstNonEmpty(cfg.Channel, defaultChannel)
	tone := firstNonEmpty(cfg.Tone, defaultTone)
	language := firstNonEmpty(cfg.Language, c.Debtor.PreferredLanguage, defaultLanguage)
	complexity := generator.HintFor(cfg.CommunicationType)

	req := generator.Request{
		Complexity: complexity,
		Prompt: generator.PromptContext{
			CaseID:                 c.ID,
			CommunicationType:      cfg.CommunicationType,
			DebtorName:             c.Debtor.Name,
			OutstandingAmount:      c.OutstandingAmount,
			DaysOverdue:            DaysOverdue(c.CreatedAt, rc.Now()),
			CurrentStage:           c.CurrentStage,
			Priority:               string(c.Priority),
			Status:                 string(c.Status),
			PreviousCommunications: len(c.Communications),
		},
		Options: generator.Options{Language: language, Tone: tone},
	}

	resp, err := e.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	draft, err := generator.ParseDraft(resp.Content)
	if err != nil {
		return nil, err
	}

	comm := collection.Communication{
		OrganizationID: c.OrganizationID,
		CaseID:         c.ID,
		Channel:        channel,
		Direction:      collection.DirectionOutbound,
		Status:         collection.CommStatusQueued,
		Subject:        draft.Subject,
		Content:        draft.Content,
		AIGenerated:    true,
		Metadata: map[string]any{
			"workflow_step_id":   step.ID,
			"workflow_id":        rc.Workflow.ID,
			"workflow_run_id":    rc.RunID,
			"communication_type": cfg.CommunicationType,
			"tone":               tone,
			"language":           language,
			"ai_model":           resp.Model,
			"generated_content":  resp.Content,
		},
	}
	cost := collection.CostRecord{
		OrganizationID:   c.OrganizationID,
		CaseID:           c.ID,
		InteractionType:  interactionCommunication,
		ModelUsed:        resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          resp.Cost,
		Metadata: map[string]any{
			"workflow_step_id":   step.ID,
			"communication_type": cfg.CommunicationType,
			"complexity":         string(complexity),
		},
	}

	id, err := e.store.RecordCommunication(ctx, comm, cost)
	if err != nil {
		return nil, err
	}

	c.Communications = append([]collection.CommunicationSummary{{
		ID:                id,
		Channel:           channel,
		CommunicationType: cfg.CommunicationType,
		Status:            collection.CommStatusQueued,
		CreatedAt:         rc.Now(),
	}}, c.Communications...)

	return map[string]any{
		"communication_id": id,
		"generation_cost":  resp.Cost,
		"model":            resp.Model,
		"success":          true,
	}, nil
}

func (e *CommunicationExecutor) generate(ctx context.Context, req generator.Request) (generator.Response, error) {
	if e.gen == nil {
		return generator.Response{}, fmt.Errorf("workflow: no content generator configured")
	}
	if e.timeout <= 0 {
		return e.gen.Generate(ctx, req)
	}

	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.gen.Generate(gctx, req)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return generator.Response{}, fmt.Errorf("%w after %s", ErrGeneratorTimeout, e.timeout)
		}
		return generator.Response{}, fmt.Errorf("workflow: generate content: %w", err)
	}
	return resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
