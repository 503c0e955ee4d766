package scheduler

import (
	"time"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/coordination"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
)

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often the scheduler polls for due jobs.
// Default: 1 second
func WithCheckInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.checkInterval = interval
		}
	}
}

// WithMaxWorkers bounds how many jobs run at once across all ids.
// Default: 8
func WithMaxWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxWorkers = int64(n)
		}
	}
}

// WithLocker adds a cross-process lock around every run.
func WithLocker(locker coordination.Locker) Option {
	return func(s *Scheduler) {
		s.locker = locker
	}
}

// WithMetrics records fires and runs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStaggering anchors new interval jobs that have no start time in the
// least busy slot of width slot within their first interval.
// Default: disabled
func WithStaggering(slot time.Duration) Option {
	return func(s *Scheduler) {
		if slot > 0 {
			s.staggerSlot = slot
		}
	}
}
