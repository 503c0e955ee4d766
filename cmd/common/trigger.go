package common

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
)

// TriggerFlags are the schedule flags shared by commands that create jobs.
type TriggerFlags struct {
	Every    time.Duration
	Cron     string
	Timezone string
	At       string
}

// Trigger builds the trigger selected by the flags, falling back to an
// interval of fallback when none is set.
func (f TriggerFlags) Trigger(fallback time.Duration) (scheduler.Trigger, error) {
	set := 0
	for _, on := range []bool{f.Every > 0, f.Cron != "", f.At != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, ErrInvalidTrigger
	}

	switch {
	case f.Cron != "":
		var loc *time.Location
		if f.Timezone != "" {
			var err error
			if loc, err = time.LoadLocation(f.Timezone); err != nil {
				return nil, fmt.Errorf("load timezone %q: %w", f.Timezone, err)
			}
		}
		cron, err := scheduler.NewCronTrigger(f.Cron, loc)
		if err != nil {
			return nil, err
		}
		return cron, nil
	case f.At != "":
		at, err := time.Parse(time.RFC3339, f.At)
		if err != nil {
			return nil, fmt.Errorf("parse --at: %w", err)
		}
		return scheduler.DateTrigger{At: at}, nil
	case f.Every > 0:
		return scheduler.IntervalTrigger{Every: f.Every}, nil
	default:
		return scheduler.IntervalTrigger{Every: fallback}, nil
	}
}
