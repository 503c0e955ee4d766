// Package jobstore persists scheduler job definitions.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrJobNotFound is returned by Get for an unknown id.
var ErrJobNotFound = errors.New("job not found")

// Trigger types.
const (
	TriggerDate     = "date"
	TriggerInterval = "interval"
	TriggerCron     = "cron"
)

// Record is the persisted form of a job definition.
type Record struct {
	ID            string          `json:"id"`
	TriggerType   string          `json:"triggerType"`
	TriggerParams json.RawMessage `json:"triggerParams"`
	TargetRef     string          `json:"targetRef"`
	Arguments     map[string]any  `json:"arguments"`
	NextFireTime  time.Time       `json:"nextFireTime"`
}

// Store is durable, id-keyed storage for job records.
type Store interface {
	// Upsert inserts rec or atomically replaces the record with the same id.
	Upsert(ctx context.Context, rec *Record) error
	// Get returns ErrJobNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Record, error)
	// DueBefore returns records whose next fire time is at or before t, earliest first.
	DueBefore(ctx context.Context, t time.Time) ([]*Record, error)
	// UpdateNextFireTime changes only the fire time and reports whether the record exists.
	UpdateNextFireTime(ctx context.Context, id string, next time.Time) (bool, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns all records ordered by next fire time.
	List(ctx context.Context) ([]*Record, error)
	// NextFireTime returns the earliest fire time across all records.
	NextFireTime(ctx context.Context) (time.Time, bool, error)
}
