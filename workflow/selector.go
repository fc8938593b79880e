package workflow

import (
	"fmt"
	"time"

	"collectflow/collection"
)

// Selector picks a catalog definition for a case from its age and priority.
type Selector struct {
	catalog *Catalog
	now     func() time.Time
}

func NewSelector(catalog *Catalog) *Selector {
	return &Selector{catalog: catalog, now: time.Now}
}

func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// Select applies the cascade in order, first match wins:
//
//  1. days overdue <= 30 and priority != critical -> standard
//  2. days overdue > 30 or priority == high        -> escalated
//  3. priority == critical                        -> urgent
//  4. otherwise                                   -> standard
//
// A critical case older than 30 days therefore lands on rule 2.
func (s *Selector) Select(c collection.Case) (Definition, error) {
	return s.catalogDefinition(s.SelectID(c))
}

// SelectID returns the id the cascade resolves to without touching the catalog.
func (s *Selector) SelectID(c collection.Case) string {
	days := DaysOverdue(c.CreatedAt, s.now())

	switch {
	case days <= 30 && c.Priority != collection.PriorityCritical:
		return StandardWorkflowID
	case days > 30 || c.Priority == collection.PriorityHigh:
		return EscalatedWorkflowID
	case c.Priority == collection.PriorityCritical:
		return UrgentWorkflowID
	default:
		return StandardWorkflowID
	}
}

func (s *Selector) catalogDefinition(id string) (Definition, error) {
	def, ok := s.catalog.Get(id)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def, nil
}
