package workflow

import (
	"context"
	"fmt"
	"time"

	"collectflow/collection"
)

const defaultDelayDays = 7

const dateLayout = "2006-01-02"

// Calendar is a set of non-working dates, compared by UTC calendar day.
type Calendar struct {
	days map[string]struct{}
}

// ParseCalendar builds a calendar from YYYY-MM-DD dates.
func ParseCalendar(dates []string) (Calendar, error) {
	cal := Calendar{days: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return Calendar{}, fmt.Errorf("workflow: holiday %q: %w", d, err)
		}
		cal.days[t.Format(dateLayout)] = struct{}{}
	}
	return cal, nil
}

func (c Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.days[t.UTC().Format(dateLayout)]
	return ok
}

// NextActionDue adds delayDays to from. With businessOnly only weekdays that
// are not holidays count. Otherwise calendar days count and, if holidays
// apply, a due date landing on one moves to the next non-holiday.
func NextActionDue(from time.Time, delayDays int, businessOnly bool, holidays *Calendar) time.Time {
	off := func(t time.Time) bool {
		return holidays != nil && holidays.IsHoliday(t)
	}

	if !businessOnly {
		due := from.AddDate(0, 0, delayDays)
		for off(due) {
			due = due.AddDate(0, 0, 1)
		}
		return due
	}

	due := from
	for remaining := delayDays; remaining > 0; {
		due = due.AddDate(0, 0, 1)
		if isWeekend(due) || off(due) {
			continue
		}
		remaining--
	}
	return due
}

func isWeekend(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WaitExecutor pushes the case's next action date forward.
type WaitExecutor struct {
	store    CaseUpdater
	holidays Calendar
}

func NewWaitExecutor(store CaseUpdater, holidays Calendar) *WaitExecutor {
	return &WaitExecutor{store: store, holidays: holidays}
}

func (e *WaitExecutor) Execute(ctx context.Context, step Step, rc *RunContext) (map[string]any, error) {
	delay := defaultDelayDays
	if step.Wait != nil && step.Wait.DelayDays != nil {
		delay = *step.Wait.DelayDays
	}

	settings := rc.Workflow.Settings
	var cal *Calendar
	if settings.RespectHolidays {
		cal = &e.holidays
	}
	due := NextActionDue(rc.Now().UTC(), delay, settings.BusinessDaysOnly, cal)

	upd := collection.CaseUpdate{NextActionDue: &due}
	if err := e.store.UpdateCase(ctx, rc.Case.ID, upd); err != nil {
		return nil, err
	}
	upd.Apply(rc.Case)

	return map[string]any{
		"delay_days":      delay,
		"next_action_due": due.Format(time.RFC3339),
	}, nil
}
