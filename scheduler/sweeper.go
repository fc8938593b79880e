// Package scheduler periodically resumes workflows for cases whose next action
// has fallen due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"collectflow/collection"
	"collectflow/logging"
	"collectflow/workflow"
)

// ActorID is recorded on runs started by the sweeper.
const ActorID = "scheduler"

const (
	defaultConcurrency = 4
	defaultBatchSize   = 100
)

// DueLister finds cases whose next action is due.
type DueLister interface {
	ListDueCases(ctx context.Context, now time.Time, limit int) ([]collection.DueCase, error)
}

// WorkflowRunner starts workflow runs.
type WorkflowRunner interface {
	Execute(ctx context.Context, req workflow.ExecuteRequest) (workflow.RunRecord, error)
}

// Report counts the outcome of one sweep.
type Report struct {
	Due     int
	Started int
	Skipped int
	Failed  int
}

// Sweeper resumes due cases on a cron schedule.
type Sweeper struct {
	due         DueLister
	runner      WorkflowRunner
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	batchSize   int

	mu   sync.Mutex
	cron *rcron.Cron
}

func NewSweeper(due DueLister, runner WorkflowRunner, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		due:         due,
		runner:      runner,
		logger:      logger,
		now:         time.Now,
		concurrency: defaultConcurrency,
		batchSize:   defaultBatchSize,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithLimits sets how many runs execute at once and how many cases one sweep
// picks up. Non-positive values keep the defaults.
func (s *Sweeper) WithLimits(concurrency, batchSize int) *Sweeper {
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	return s
}

// Sweep runs one pass: every due case gets a resumed run of its selected
// workflow. Per-case failures are counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	cases, err := s.due.ListDueCases(ctx, s.now(), s.batchSize)
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: list due cases: %w", err)
	}

	var started, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, dc := range cases {
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			runCtx := logging.WithCaseID(gctx, dc.ID)
			run, err := s.runner.Execute(runCtx, workflow.ExecuteRequest{
				CaseID:         dc.ID,
				OrganizationID: dc.OrganizationID,
				ActorID:        ActorID,
				Resume:         true,
			})
			switch {
			case err == nil:
				started.Add(1)
				s.logger.DebugContext(runCtx, "sweep run finished", "run_id", run.ID, "status", run.Status)
			case errors.Is(err, workflow.ErrCaseLocked):
				skipped.Add(1)
			default:
				failed.Add(1)
				s.logger.WarnContext(runCtx, "sweep run failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{
		Due:     len(cases),
		Started: int(started.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	s.logger.InfoContext(ctx, "sweep finished",
		"due", rep.Due, "started", rep.Started, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, ctx.Err()
}

// Start schedules Sweep on spec. A sweep still running when the next tick
// fires causes that tick to be skipped.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler: already started")
	}

	logger := cronLogger{logger: s.logger}
	c := rcron.New(
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.Recover(logger), rcron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to return or for ctx
// to end, whichever is first.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger forwards cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
