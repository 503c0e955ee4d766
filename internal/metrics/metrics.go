// Package metrics provides the Prometheus collectors for scheduled tracking runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all pricetracker metrics.
	Namespace = "pricetracker"

	subsystemScheduler = "scheduler"
	subsystemTracking  = "tracking"
)

// Fire outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCoalesced = "coalesced"
	OutcomeLocked    = "locked"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	JobsFiredTotal       *prometheus.CounterVec
	JobDurationSeconds   *prometheus.HistogramVec
	JobsCurrentlyRunning prometheus.Gauge
	JobsScheduled        prometheus.Gauge
	PollErrorsTotal      prometheus.Counter

	TrackingRunsTotal *prometheus.CounterVec
	LastPrice         *prometheus.GaugeVec
}

// New creates and registers all collectors on reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initSchedulerMetrics(factory)
	m.initTrackingMetrics(factory)

	return m
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.JobsFiredTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemScheduler,
			Name:      "jobs_fired_total",
			Help:      "Total number of due job fires by outcome",
		},
		[]string{"target", "outcome"},
	)

	m.JobDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemScheduler,
			Name:      "job_duration_seconds",
			Help:      "Duration of job execution in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"target"},
	)

	m.JobsCurrentlyRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemScheduler,
			Name:      "jobs_currently_running",
			Help:      "Number of jobs currently running",
		},
	)

	m.JobsScheduled = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemScheduler,
			Name:      "jobs_scheduled",
			Help:      "Number of jobs in the job store",
		},
	)

	m.PollErrorsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemScheduler,
			Name:      "poll_errors_total",
			Help:      "Total number of failed job store polls",
		},
	)
}

func (m *Metrics) initTrackingMetrics(factory promauto.Factory) {
	m.TrackingRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemTracking,
			Name:      "runs_total",
			Help:      "Total number of tracking runs by platform and result stage",
		},
		[]string{"platform", "stage"},
	)

	m.LastPrice = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemTracking,
			Name:      "last_price",
			Help:      "Most recently recorded price per product",
		},
		[]string{"product_id", "platform"},
	)
}

// RecordFire counts one due fire of target.
func (m *Metrics) RecordFire(target, outcome string) {
	if m == nil {
		return
	}
	m.JobsFiredTotal.WithLabelValues(target, outcome).Inc()
}

// ObserveRun records a finished execution.
func (m *Metrics) ObserveRun(target string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobDurationSeconds.WithLabelValues(target).Observe(d.Seconds())
}

// RunStarted increments the running gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.JobsCurrentlyRunning.Inc()
}

// RunFinished decrements the running gauge.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.JobsCurrentlyRunning.Dec()
}

// SetScheduled sets the stored job count.
func (m *Metrics) SetScheduled(n int) {
	if m == nil {
		return
	}
	m.JobsScheduled.Set(float64(n))
}

// PollFailed counts a failed poll.
func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.PollErrorsTotal.Inc()
}

// RecordTracking counts a tracking run; stage is "ok" on success.
func (m *Metrics) RecordTracking(platform, stage string) {
	if m == nil {
		return
	}
	m.TrackingRunsTotal.WithLabelValues(platform, stage).Inc()
}

// SetLastPrice records the latest price of a product.
func (m *Metrics) SetLastPrice(productID, platform string, price float64) {
	if m == nil {
		return
	}
	m.LastPrice.WithLabelValues(productID, platform).Set(price)
}

// Handler serves the collectors registered on gatherer, or the default gatherer when nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
