package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
)

const (
	// TargetRef is the scheduler target the tracking job is registered under.
	TargetRef = "tracking.run"
	// ArgProductID is the job argument naming the tracked product.
	ArgProductID = "product_id"

	jobIDPrefix = "tracking:"
)

// ErrMissingProductID is returned when a fired job has no product id argument.
var ErrMissingProductID = errors.New("tracking job requires a product_id argument")

// JobID returns the scheduler job id for productID. Tracking the same
// product again replaces its job instead of adding another.
func JobID(productID string) string {
	return jobIDPrefix + productID
}

// Target adapts Run to a scheduler job function.
func (j *Job) Target() scheduler.JobFunc {
	return func(ctx context.Context, args map[string]any) error {
		productID, ok := args[ArgProductID].(string)
		if !ok || productID == "" {
			return ErrMissingProductID
		}
		_, err := j.Run(ctx, productID)
		return err
	}
}

// Register binds the job to TargetRef in reg.
func (j *Job) Register(reg *scheduler.Registry) {
	reg.Register(TargetRef, j.Target())
}

// JobCreator creates or replaces scheduler jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, spec scheduler.JobSpec) (string, error)
}

// JobRemover removes scheduler jobs.
type JobRemover interface {
	RemoveJob(ctx context.Context, id string) (bool, error)
}

// Track schedules the tracking job for productID on trigger.
func Track(ctx context.Context, s JobCreator, productID string, trigger scheduler.Trigger) (string, error) {
	if productID == "" {
		return "", ErrMissingProductID
	}

	id, err := s.CreateJob(ctx, scheduler.JobSpec{
		ID:        JobID(productID),
		TargetRef: TargetRef,
		Arguments: map[string]any{ArgProductID: productID},
		Trigger:   trigger,
	})
	if err != nil {
		return "", fmt.Errorf("track product %s: %w", productID, err)
	}
	return id, nil
}

// Untrack removes the tracking job for productID. Recorded history is kept.
func Untrack(ctx context.Context, s JobRemover, productID string) (bool, error) {
	return s.RemoveJob(ctx, JobID(productID))
}
