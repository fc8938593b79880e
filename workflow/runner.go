package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"collectflow/collection"
	"collectflow/generator"
	"collectflow/logging"
)

// DefaultGeneratorTimeout bounds a single content generation call.
const DefaultGeneratorTimeout = 45 * time.Second

// finishTimeout bounds persisting the final run record once the caller's
// context is gone.
const finishTimeout = 10 * time.Second

// RunStore persists run records. StartRun happens before any step,
// AppendResult after every step and FinishRun once at the end.
type RunStore interface {
	StartRun(ctx context.Context, run RunRecord) error
	AppendResult(ctx context.Context, runID string, seq int, res StepResult) error
	FinishRun(ctx context.Context, run RunRecord) error
	CompletedSteps(ctx context.Context, caseID, workflowID string) (map[string]bool, error)
}

// Locker grants exclusive access to a case for the duration of a run.
type Locker interface {
	LockCase(ctx context.Context, caseID string) (func(), error)
}

type Dependencies struct {
	Cases     CaseStore
	Runs      RunStore
	Catalog   *Catalog
	Generator generator.Generator
	// Locker is optional; without it concurrent runs on a case are not excluded.
	Locker Locker
}

// ExecuteRequest names the case to run. WorkflowID is optional; when empty the
// selector picks one. OrganizationID, when set, must own the case.
type ExecuteRequest struct {
	CaseID         string
	WorkflowID     string
	OrganizationID string
	ActorID        string
	// Resume skips steps already completed for this case and workflow.
	Resume bool
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Runner) { r.newID = gen }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithGeneratorTimeout(d time.Duration) Option {
	return func(r *Runner) { r.generatorTimeout = d }
}

// WithHolidays sets the calendar wait steps consult when a workflow respects holidays.
func WithHolidays(cal Calendar) Option {
	return func(r *Runner) { r.holidays = cal }
}

// WithExecutor replaces the executor registered for kind.
func WithExecutor(kind StepKind, exec StepExecutor) Option {
	return func(r *Runner) { r.executors[kind] = exec }
}

// Runner executes workflow definitions against cases.
type Runner struct {
	cases    CaseStore
	runs     RunStore
	catalog  *Catalog
	selector *Selector
	gen      generator.Generator
	locker   Locker

	executors        map[StepKind]StepExecutor
	now              func() time.Time
	newID            func() string
	logger           *slog.Logger
	generatorTimeout time.Duration
	holidays         Calendar
	inst             instruments
}

func NewRunner(deps Dependencies, opts ...Option) *Runner {
	r := &Runner{
		cases:            deps.Cases,
		runs:             deps.Runs,
		catalog:          deps.Catalog,
		gen:              deps.Generator,
		locker:           deps.Locker,
		executors:        make(map[StepKind]StepExecutor),
		now:              time.Now,
		newID:            uuid.NewString,
		logger:           slog.Default(),
		generatorTimeout: DefaultGeneratorTimeout,
		inst:             newInstruments(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.selector = NewSelector(r.catalog).WithClock(r.now)
	r.registerDefault(StepCommunication, NewCommunicationExecutor(r.cases, r.gen, r.generatorTimeout))
	r.registerDefault(StepWait, NewWaitExecutor(r.cases, r.holidays))
	r.registerDefault(StepEscalation, NewEscalationExecutor(r.cases))
	r.registerDefault(StepAction, NewActionExecutor(r.cases).WithIDGenerator(r.newID))
	return r
}

func (r *Runner) registerDefault(kind StepKind, exec StepExecutor) {
	if _, ok := r.executors[kind]; !ok {
		r.executors[kind] = exec
	}
}

// Catalog returns the definitions the runner resolves against.
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Execute runs one workflow pass over a case. Resolution and lock failures
// return before any step runs. Step failures are recorded in the returned
// record and do not abort the pass. A failure to persist the final record is
// returned together with the in-memory record.
func (r *Runner) Execute(ctx context.Context, req ExecuteRequest) (RunRecord, error) {
	if req.CaseID == "" {
		return RunRecord{}, fmt.Errorf("workflow: missing case id")
	}
	ctx = logging.WithCaseID(ctx, req.CaseID)
	ctx, span := r.inst.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(attribute.String("collectflow.case.id", req.CaseID)))
	defer span.End()

	run, err := r.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return run, err
}

func (r *Runner) execute(ctx context.Context, req ExecuteRequest) (RunRecord, error) {
	if r.locker != nil {
		release, err := r.locker.LockCase(ctx, req.CaseID)
		if err != nil {
			if errors.Is(err, collection.ErrCaseLocked) {
				return RunRecord{}, ErrCaseLocked
			}
			return RunRecord{}, fmt.Errorf("workflow: lock case: %w", err)
		}
		defer release()
	}

	c, err := r.cases.GetCase(ctx, req.CaseID)
	if err != nil {
		if errors.Is(err, collection.ErrCaseNotFound) {
			return RunRecord{}, ErrCaseNotFound
		}
		return RunRecord{}, fmt.Errorf("workflow: load case: %w", err)
	}
	if req.OrganizationID != "" && req.OrganizationID != c.OrganizationID {
		return RunRecord{}, ErrCaseNotFound
	}

	def, err := r.resolve(req.WorkflowID, c)
	if err != nil {
		return RunRecord{}, err
	}
	ctx = logging.WithWorkflowID(ctx, def.ID)

	var completed map[string]bool
	if req.Resume {
		completed, err = r.runs.CompletedSteps(ctx, c.ID, def.ID)
		if err != nil {
			return RunRecord{}, fmt.Errorf("workflow: load completed steps: %w", err)
		}
	}

	started := r.now()
	run := RunRecord{
		ID:             r.newID(),
		WorkflowID:     def.ID,
		WorkflowName:   def.Name,
		CaseID:         c.ID,
		OrganizationID: c.OrganizationID,
		ActorID:        req.ActorID,
		Results:        make([]StepResult, 0, len(def.Steps)),
		Status:         RunRunning,
		StartedAt:      started,
	}
	if err := r.runs.StartRun(ctx, run); err != nil {
		return RunRecord{}, fmt.Errorf("workflow: start run: %w", err)
	}
	ctx = logging.WithRunID(ctx, run.ID)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("collectflow.workflow.id", def.ID),
		attribute.String("collectflow.run.id", run.ID),
	)
	r.logger.InfoContext(ctx, "workflow run started", "steps", len(def.Steps), "resume", req.Resume)

	rc := &RunContext{
		Case:     &c,
		Workflow: def,
		RunID:    run.ID,
		ActorID:  req.ActorID,
		Now:      r.now,
	}

	var failed, stopped, canceled bool
	for seq, step := range def.Steps {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		res := r.runStep(ctx, step, rc, completed)
		run.Results = append(run.Results, res)
		if res.Executed() {
			run.StepsExecuted++
		}
		if res.Outcome == OutcomeError {
			failed = true
		}
		if err := r.runs.AppendResult(ctx, run.ID, seq, res); err != nil {
			r.logger.WarnContext(logging.WithStepID(ctx, step.ID), "persist step result failed", "error", err)
		}

		if def.Settings.AutoStopOnPayment && c.Status == collection.StatusResolved {
			stopped = seq < len(def.Steps)-1
			r.logger.InfoContext(ctx, "case resolved, stopping run", "after_step", step.ID)
			break
		}
	}

	switch {
	case canceled:
		run.Status = RunCanceled
	case stopped:
		run.Status = RunStopped
	case failed:
		run.Status = RunCompletedWithErrors
	default:
		run.Status = RunCompleted
	}
	finished := r.now()
	run.CompletedAt = &finished

	attrs := metric.WithAttributes(
		attribute.String("workflow", def.ID),
		attribute.String("status", string(run.Status)),
	)
	r.inst.runs.Add(ctx, 1, attrs)
	r.inst.runDuration.Record(ctx, finished.Sub(started).Seconds(), attrs)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := r.runs.FinishRun(finishCtx, run); err != nil {
		r.logger.ErrorContext(ctx, "persist run record failed", "error", err)
		return run, fmt.Errorf("workflow: persist run: %w", err)
	}

	r.logger.InfoContext(ctx, "workflow run finished",
		"status", run.Status, "steps_executed", run.StepsExecuted)
	if canceled {
		return run, ctx.Err()
	}
	return run, nil
}

func (r *Runner) resolve(workflowID string, c collection.Case) (Definition, error) {
	if workflowID == "" {
		return r.selector.Select(c)
	}
	def, ok := r.catalog.Get(workflowID)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	return def, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, rc *RunContext, completed map[string]bool) StepResult {
	ctx = logging.WithStepID(ctx, step.ID)
	res := StepResult{
		StepID:   step.ID,
		StepName: step.Name,
		Kind:     step.Kind,
	}

	view := NewCaseView(*rc.Case, r.now())
	gate := Evaluate(step.Conditions, view)
	if gate && step.When != "" {
		var err error
		if gate, err = EvaluateWhen(step.When, view); err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			res.ExecutedAt = r.now()
			r.countStep(ctx, res)
			r.logger.WarnContext(ctx, "step gate failed", "error", err)
			return res
		}
	}
	if !gate {
		res.Outcome = OutcomeSkipped
		res.SkipReason = SkipConditionsNotMet
		res.ExecutedAt = r.now()
		r.countStep(ctx, res)
		r.logger.DebugContext(ctx, "step skipped", "reason", res.SkipReason)
		return res
	}
	if completed[step.ID] {
		res.Outcome = OutcomeSkipped
		res.SkipReason = SkipAlreadyCompleted
		res.ExecutedAt = r.now()
		r.countStep(ctx, res)
		r.logger.DebugContext(ctx, "step skipped", "reason", res.SkipReason)
		return res
	}

	ctx, span := r.inst.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("collectflow.step.id", step.ID),
			attribute.String("collectflow.step.kind", string(step.Kind)),
		))
	defer span.End()

	payload, err := r.dispatch(ctx, step, rc)
	res.ExecutedAt = r.now()
	if err != nil {
		stepErr := &StepExecutionError{StepID: step.ID, Kind: step.Kind, Cause: err}
		res.Outcome = OutcomeError
		res.Error = err.Error()
		span.RecordError(stepErr)
		span.SetStatus(codes.Error, res.Error)
		r.logger.WarnContext(ctx, "step failed", "kind", step.Kind, "error", stepErr)
	} else {
		res.Outcome = OutcomeSuccess
		res.Result = payload
		r.logger.InfoContext(ctx, "step succeeded", "kind", step.Kind)
	}
	r.countStep(ctx, res)
	return res
}

func (r *Runner) dispatch(ctx context.Context, step Step, rc *RunContext) (payload map[string]any, err error) {
	exec, ok := r.executors[step.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, step.Kind)
	}
	defer func() {
		if p := recover(); p != nil {
			payload = nil
			err = fmt.Errorf("workflow: executor panic: %v", p)
		}
	}()
	return exec.Execute(ctx, step, rc)
}

func (r *Runner) countStep(ctx context.Context, res StepResult) {
	r.inst.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(res.Kind)),
		attribute.String("outcome", string(res.Outcome)),
	))
}
