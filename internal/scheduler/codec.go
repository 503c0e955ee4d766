package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/jobstore"
)

type dateParams struct {
	RunAt time.Time `json:"runAt"`
}

type intervalParams struct {
	Every string    `json:"every"`
	Start time.Time `json:"start"`
}

type cronParams struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
}

// EncodeTrigger returns the persisted trigger type and parameters.
func EncodeTrigger(t Trigger) (string, json.RawMessage, error) {
	var params any
	switch tr := t.(type) {
	case DateTrigger:
		params = dateParams{RunAt: tr.At.UTC()}
	case *DateTrigger:
		params = dateParams{RunAt: tr.At.UTC()}
	case IntervalTrigger:
		params = intervalParams{Every: tr.Every.String(), Start: tr.Start.UTC()}
	case *IntervalTrigger:
		params = intervalParams{Every: tr.Every.String(), Start: tr.Start.UTC()}
	case *CronTrigger:
		params = cronParams{Expression: tr.Expression, Timezone: tr.Location.String()}
	default:
		return "", nil, fmt.Errorf("%w: unsupported trigger %T", ErrInvalidTrigger, t)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", nil, fmt.Errorf("encode trigger params: %w", err)
	}
	return t.Kind(), raw, nil
}

// DecodeTrigger rebuilds a trigger from its persisted form.
func DecodeTrigger(kind string, raw json.RawMessage) (Trigger, error) {
	switch kind {
	case jobstore.TriggerDate:
		var p dateParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: date params: %w", ErrInvalidTrigger, err)
		}
		return DateTrigger{At: p.RunAt}, nil

	case jobstore.TriggerInterval:
		var p intervalParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: interval params: %w", ErrInvalidTrigger, err)
		}
		every, err := time.ParseDuration(p.Every)
		if err != nil {
			return nil, fmt.Errorf("%w: interval %q: %w", ErrInvalidTrigger, p.Every, err)
		}
		t := IntervalTrigger{Every: every, Start: p.Start}
		if vErr := t.validate(); vErr != nil {
			return nil, vErr
		}
		return t, nil

	case jobstore.TriggerCron:
		var p cronParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: cron params: %w", ErrInvalidTrigger, err)
		}
		loc := time.UTC
		if p.Timezone != "" {
			var err error
			if loc, err = time.LoadLocation(p.Timezone); err != nil {
				return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidTrigger, p.Timezone, err)
			}
		}
		return NewCronTrigger(p.Expression, loc)

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, kind)
	}
}
