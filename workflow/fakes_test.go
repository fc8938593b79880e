package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collectflow/collection"
	"collectflow/generator"
)

var testNow = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC) // a Wednesday

func fixedClock() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newCase(id string, priority collection.Priority, age time.Duration) collection.Case {
	return collection.Case{
		ID:                id,
		OrganizationID:    "org-1",
		DebtorID:          "debtor-" + id,
		Status:            collection.StatusActive,
		Priority:          priority,
		OutstandingAmount: 250,
		CreatedAt:         testNow.Add(-age),
		UpdatedAt:         testNow.Add(-age),
		Debtor: collection.Debtor{
			ID:                "debtor-" + id,
			Name:              "Ada Lovelace",
			Email:             "ada@example.com",
			PreferredLanguage: "en",
			RiskProfile:       "medium",
		},
	}
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// fakeCaseStore is an in-memory CaseStore.
type fakeCaseStore struct {
	mu             sync.Mutex
	cases          map[string]collection.Case
	communications []collection.Communication
	costs          []collection.CostRecord
	audit          []collection.AuditEvent
	notifications  []collection.Notification
	updates        []collection.CaseUpdate

	getErr    error
	updateErr error
	recordErr error
}

func newFakeCaseStore(cases ...collection.Case) *fakeCaseStore {
	s := &fakeCaseStore{cases: make(map[string]collection.Case)}
	for _, c := range cases {
		s.cases[c.ID] = c
	}
	return s
}

func (s *fakeCaseStore) GetCase(_ context.Context, id string) (collection.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return collection.Case{}, s.getErr
	}
	c, ok := s.cases[id]
	if !ok {
		return collection.Case{}, collection.ErrCaseNotFound
	}
	return c, nil
}

func (s *fakeCaseStore) UpdateCase(_ context.Context, id string, upd collection.CaseUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	c, ok := s.cases[id]
	if !ok {
		return collection.ErrCaseNotFound
	}
	upd.Apply(&c)
	s.cases[id] = c
	s.updates = append(s.updates, upd)
	return nil
}

func (s *fakeCaseStore) UpdateDebtorRisk(_ context.Context, debtorID, risk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.cases {
		if c.DebtorID == debtorID {
			c.Debtor.RiskProfile = risk
			s.cases[id] = c
			return nil
		}
	}
	return collection.ErrDebtorNotFound
}

func (s *fakeCaseStore) RecordCommunication(_ context.Context, comm collection.Communication, cost collection.CostRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return "", s.recordErr
	}
	comm.ID = fmt.Sprintf("comm-%d", len(s.communications)+1)
	s.communications = append(s.communications, comm)
	s.costs = append(s.costs, cost)
	return comm.ID, nil
}

func (s *fakeCaseStore) InsertAuditEvent(_ context.Context, ev collection.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, ev)
	return nil
}

func (s *fakeCaseStore) EnqueueNotification(_ context.Context, n collection.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *fakeCaseStore) stored(id string) collection.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[id]
}

// fakeRunStore keeps runs in memory.
type fakeRunStore struct {
	mu        sync.Mutex
	started   []RunRecord
	appended  map[string][]StepResult
	finished  []RunRecord
	completed map[string]map[string]bool // caseID/workflowID -> step ids

	startErr  error
	appendErr error
	finishErr error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		appended:  make(map[string][]StepResult),
		completed: make(map[string]map[string]bool),
	}
}

func completionKey(caseID, workflowID string) string { return caseID + "/" + workflowID }

func (s *fakeRunStore) StartRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, run)
	return nil
}

func (s *fakeRunStore) AppendResult(_ context.Context, runID string, _ int, res StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended[runID] = append(s.appended[runID], res)
	if res.Outcome == OutcomeSuccess {
		for _, run := range s.started {
			if run.ID == runID {
				key := completionKey(run.CaseID, run.WorkflowID)
				if s.completed[key] == nil {
					s.completed[key] = make(map[string]bool)
				}
				s.completed[key][res.StepID] = true
			}
		}
	}
	return nil
}

func (s *fakeRunStore) FinishRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.finished = append(s.finished, run)
	return nil
}

func (s *fakeRunStore) CompletedSteps(_ context.Context, caseID, workflowID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for id := range s.completed[completionKey(caseID, workflowID)] {
		out[id] = true
	}
	return out, nil
}

// stubGenerator answers every request with content unless a hook overrides it.
type stubGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
	content  string
	err      error
	block    bool
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{content: `{"subject":"Payment reminder","content":"Please settle your balance."}`}
}

func (g *stubGenerator) Generate(ctx context.Context, req generator.Request) (generator.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	content, err, block := g.content, g.err, g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return generator.Response{}, ctx.Err()
	}
	if err != nil {
		return generator.Response{}, err
	}
	return generator.Response{
		Content: content,
		Model:   "stub-small",
		Usage:   generator.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
		Cost:    0.002,
	}, nil
}

func (g *stubGenerator) calls() []generator.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generator.Request(nil), g.requests...)
}

// fakeLocker hands out one lock per case.
type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	err    error
	grants int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) LockCase(_ context.Context, caseID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[caseID] {
		return nil, collection.ErrCaseLocked
	}
	l.held[caseID] = true
	l.grants++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, caseID)
	}, nil
}

func (l *fakeLocker) isHeld(caseID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[caseID]
}

var errBoom = errors.New("boom")
