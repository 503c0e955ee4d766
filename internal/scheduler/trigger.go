package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/jobstore"
)

// ErrInvalidTrigger is returned for malformed or exhausted triggers.
var ErrInvalidTrigger = errors.New("invalid trigger")

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Trigger decides when a job fires.
type Trigger interface {
	// Kind is the persisted trigger type.
	Kind() string
	// First returns the first fire time at or after now.
	First(now time.Time) (time.Time, bool)
	// After returns the first fire time strictly after t, or false when the
	// trigger will not fire again.
	After(t time.Time) (time.Time, bool)
}

// DateTrigger fires exactly once.
type DateTrigger struct {
	At time.Time
}

// Kind implements Trigger.
func (DateTrigger) Kind() string { return jobstore.TriggerDate }

// First returns At even when it is already in the past, so an overdue
// one-shot job still fires once.
func (t DateTrigger) First(time.Time) (time.Time, bool) { return t.At, true }

// After implements Trigger. A date trigger never fires twice.
func (DateTrigger) After(time.Time) (time.Time, bool) { return time.Time{}, false }

// IntervalTrigger fires every Every, on the grid Start + k*Every.
// A zero Start is replaced by creation time plus Every when the job is created.
type IntervalTrigger struct {
	Every time.Duration
	Start time.Time
}

// Kind implements Trigger.
func (IntervalTrigger) Kind() string { return jobstore.TriggerInterval }

// First implements Trigger.
func (t IntervalTrigger) First(now time.Time) (time.Time, bool) {
	if !now.After(t.Start) {
		return t.Start, true
	}
	steps := (now.Sub(t.Start) + t.Every - 1) / t.Every
	return t.Start.Add(steps * t.Every), true
}

// After implements Trigger.
func (t IntervalTrigger) After(x time.Time) (time.Time, bool) {
	if x.Before(t.Start) {
		return t.Start, true
	}
	steps := x.Sub(t.Start)/t.Every + 1
	return t.Start.Add(steps * t.Every), true
}

func (t IntervalTrigger) validate() error {
	if t.Every <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidTrigger, t.Every)
	}
	return nil
}

// CronTrigger fires on a five-field cron calendar in Location.
type CronTrigger struct {
	Expression string
	Location   *time.Location

	schedule cron.Schedule
}

// NewCronTrigger parses expr. A nil loc means UTC.
func NewCronTrigger(expr string, loc *time.Location) (*CronTrigger, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %w", ErrInvalidTrigger, expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronTrigger{Expression: expr, Location: loc, schedule: schedule}, nil
}

// Kind implements Trigger.
func (*CronTrigger) Kind() string { return jobstore.TriggerCron }

// First implements Trigger.
func (t *CronTrigger) First(now time.Time) (time.Time, bool) {
	return t.After(now)
}

// After implements Trigger.
func (t *CronTrigger) After(x time.Time) (time.Time, bool) {
	next := t.schedule.Next(x.In(t.Location))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
