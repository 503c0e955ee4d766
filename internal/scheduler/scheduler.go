// Package scheduler fires persisted jobs on date, interval and cron triggers.
//
// Job definitions live in a jobstore.Store, so schedules survive restarts.
// Each job id runs single-flight: a fire that comes due while the previous
// run of the same id is still in progress is coalesced into that run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/coordination"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/jobstore"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
)

const (
	defaultCheckInterval = 1 * time.Second
	defaultMaxWorkers    = 8

	lockHeartbeatDivisor = 3
	minPollWait          = time.Millisecond
)

var (
	// ErrJobNotFound is returned by GetJob for an unknown id.
	ErrJobNotFound = jobstore.ErrJobNotFound
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// JobSpec describes a job to create or replace.
type JobSpec struct {
	// ID is generated when empty. An existing id is replaced in place.
	ID        string
	TargetRef string
	Arguments map[string]any
	Trigger   Trigger
}

// Job is a stored job as seen by callers.
type Job struct {
	ID           string
	TargetRef    string
	Arguments    map[string]any
	Trigger      Trigger
	NextFireTime time.Time
	State        JobState
}

type execution struct {
	jobID     string
	target    string
	args      map[string]any
	fn        JobFunc
	oneShot   bool
	scheduled time.Time
	state     JobState
}

// Scheduler polls the job store and runs due jobs on a bounded worker pool.
type Scheduler struct {
	store   jobstore.Store
	targets *Registry
	logger  logger.Logger
	locker  coordination.Locker
	metrics *metrics.Metrics
	now     func() time.Time

	checkInterval time.Duration
	maxWorkers    int64
	sem           *semaphore.Weighted
	staggerSlot   time.Duration

	// mu serializes store mutations with the running set.
	mu      sync.Mutex
	running map[string]*execution
	started bool

	wake chan struct{}

	stopLoop   context.CancelFunc
	cancelRuns context.CancelFunc
	runCtx     context.Context
	loopWG     sync.WaitGroup
	runWG      sync.WaitGroup
}

// New creates a Scheduler over store. Targets referenced by stored jobs must
// be registered in targets before Start.
func New(store jobstore.Store, targets *Registry, log logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}

	s := &Scheduler{
		store:         store,
		targets:       targets,
		logger:        log,
		now:           time.Now,
		checkInterval: defaultCheckInterval,
		maxWorkers:    defaultMaxWorkers,
		running:       make(map[string]*execution),
		wake:          make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.maxWorkers)

	return s
}

// CreateJob stores spec and returns its id. Calling it again with the same
// id replaces the trigger, target and arguments of the existing job.
func (s *Scheduler) CreateJob(ctx context.Context, spec JobSpec) (string, error) {
	if _, ok := s.targets.Lookup(spec.TargetRef); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, spec.TargetRef)
	}
	if spec.Trigger == nil {
		return "", fmt.Errorf("%w: nil trigger", ErrInvalidTrigger)
	}

	now := s.now()
	trigger, err := normalizeTrigger(spec.Trigger)
	if err != nil {
		return "", err
	}
	if interval, ok := trigger.(IntervalTrigger); ok && interval.Start.IsZero() {
		interval.Start = s.defaultAnchor(ctx, now, interval.Every)
		trigger = interval
	}

	first, ok := trigger.First(now)
	if !ok {
		return "", fmt.Errorf("%w: trigger never fires", ErrInvalidTrigger)
	}

	kind, params, err := EncodeTrigger(trigger)
	if err != nil {
		return "", err
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	rec := &jobstore.Record{
		ID:            id,
		TriggerType:   kind,
		TriggerParams: params,
		TargetRef:     spec.TargetRef,
		Arguments:     spec.Arguments,
		NextFireTime:  first,
	}

	s.mu.Lock()
	err = s.store.Upsert(ctx, rec)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("Job scheduled",
		logger.String("job_id", id),
		logger.String("target", spec.TargetRef),
		logger.String("trigger", kind),
		logger.Time("next_fire_time", first),
	)

	s.refreshScheduledGauge(ctx)
	s.notify()
	return id, nil
}

// RemoveJob deletes the job and reports whether it existed. A run already in
// progress is allowed to finish.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	deleted, err := s.store.Delete(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}

	if deleted {
		s.logger.Info("Job removed", logger.String("job_id", id))
		s.refreshScheduledGauge(ctx)
	}
	return deleted, nil
}

// GetJob returns a stored job.
func (s *Scheduler) GetJob(ctx context.Context, id string) (*Job, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toJob(rec)
}

// Jobs returns every stored job ordered by next fire time.
func (s *Scheduler) Jobs(ctx context.Context) ([]*Job, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		job, convErr := s.toJob(rec)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// State reports the lifecycle state of id.
func (s *Scheduler) State(ctx context.Context, id string) (JobState, error) {
	if s.isRunning(id) {
		return StateFiring, nil
	}

	_, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		return StateRemoved, nil
	}
	if err != nil {
		return "", err
	}
	return StateScheduled, nil
}

func (s *Scheduler) toJob(rec *jobstore.Record) (*Job, error) {
	trigger, err := DecodeTrigger(rec.TriggerType, rec.TriggerParams)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", rec.ID, err)
	}

	state := StateScheduled
	if s.isRunning(rec.ID) {
		state = StateFiring
	}

	return &Job{
		ID:           rec.ID,
		TargetRef:    rec.TargetRef,
		Arguments:    rec.Arguments,
		Trigger:      trigger,
		NextFireTime: rec.NextFireTime,
		State:        state,
	}, nil
}

func (s *Scheduler) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// Start launches the poll loop. Runs continue until Stop even if ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	loopCtx, stopLoop := context.WithCancel(ctx)
	s.stopLoop = stopLoop
	s.runCtx, s.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.logger.Info("Starting scheduler",
		logger.Duration("check_interval", s.checkInterval),
		logger.Int64("max_workers", s.maxWorkers),
		logger.Bool("distributed_lock", s.locker != nil),
		logger.Strings("targets", s.targets.Refs()),
	)

	s.refreshScheduledGauge(ctx)

	s.loopWG.Add(1)
	go s.pollJobs(loopCtx)

	return nil
}

// Stop ends the poll loop and waits for in-flight runs. When ctx expires
// first, in-flight runs are cancelled and Stop returns ctx.Err().
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")

	s.stopLoop()
	s.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached, cancelling running jobs")
		s.cancelRuns()
		<-done
		err = ctx.Err()
	}
	s.cancelRuns()

	s.logger.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pollJobs checks for due jobs when the earliest one comes due, at least
// every check interval, and whenever a job is created.
func (s *Scheduler) pollJobs(ctx context.Context) {
	defer s.loopWG.Done()

	s.checkAndFire(ctx)

	timer := time.NewTimer(s.nextWait(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Job poller stopping")
			return
		case <-timer.C:
			s.checkAndFire(ctx)
		case <-s.wake:
			s.checkAndFire(ctx)
		}
		timer.Reset(s.nextWait(ctx))
	}
}

// nextWait is the time until the earliest stored fire time, capped at the
// check interval. Jobs written by other processes are picked up by the cap.
func (s *Scheduler) nextWait(ctx context.Context) time.Duration {
	next, ok, err := s.store.NextFireTime(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("Failed to load next fire time", logger.Error(err))
		}
		return s.checkInterval
	}
	if !ok {
		return s.checkInterval
	}

	until := next.Sub(s.now())
	if until <= 0 || until >= s.checkInterval {
		return s.checkInterval
	}
	return max(until, minPollWait)
}

func (s *Scheduler) checkAndFire(ctx context.Context) {
	now := s.now()

	due, err := s.store.DueBefore(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to load due jobs", logger.Error(err))
			s.metrics.PollFailed()
		}
		return
	}

	if len(due) > 0 {
		s.logger.Debug("Found due jobs", logger.Int("count", len(due)))
	}

	fired := false
	for _, rec := range due {
		if ctx.Err() != nil {
			return
		}
		if s.fire(ctx, rec.ID, now) {
			fired = true
		}
	}

	if fired {
		s.refreshScheduledGauge(ctx)
	}
}

// fire advances the job's schedule past now and starts a run unless one is
// already in progress. Missed fire times collapse into this single fire.
func (s *Scheduler) fire(ctx context.Context, id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		return false
	}
	if err != nil {
		s.logger.Error("Failed to load job", logger.String("job_id", id), logger.Error(err))
		return false
	}
	if rec.NextFireTime.After(now) {
		// Replaced since the poll query ran.
		return false
	}

	log := s.logger.With(logger.String("job_id", id), logger.String("target", rec.TargetRef))

	trigger, err := DecodeTrigger(rec.TriggerType, rec.TriggerParams)
	if err != nil {
		log.Error("Removing job with unreadable trigger", logger.Error(err))
		if _, delErr := s.store.Delete(ctx, id); delErr != nil {
			log.Error("Failed to remove job", logger.Error(delErr))
		}
		return true
	}

	next, recurring := trigger.After(now)
	if recurring {
		_, err = s.store.UpdateNextFireTime(ctx, id, next)
	} else {
		_, err = s.store.Delete(ctx, id)
	}
	if err != nil {
		log.Error("Failed to advance job schedule", logger.Error(err))
		return false
	}

	fn, ok := s.targets.Lookup(rec.TargetRef)
	if !ok {
		log.Error("Job target is not registered, skipping fire")
		s.metrics.RecordFire(rec.TargetRef, metrics.OutcomeFailed)
		return true
	}

	if _, inFlight := s.running[id]; inFlight {
		log.Info("Job still running, coalescing fire", logger.Time("scheduled_for", rec.NextFireTime))
		s.metrics.RecordFire(rec.TargetRef, metrics.OutcomeCoalesced)
		return true
	}

	if late := now.Sub(rec.NextFireTime); late > s.checkInterval*2 {
		log.Warn("Job fired late", logger.Duration("late_by", late))
	}

	exec := &execution{
		jobID:     id,
		target:    rec.TargetRef,
		args:      rec.Arguments,
		fn:        fn,
		oneShot:   !recurring,
		scheduled: rec.NextFireTime,
		state:     StateScheduled,
	}
	s.running[id] = exec
	s.runWG.Add(1)
	go s.runJob(exec)

	return true
}

func (s *Scheduler) runJob(exec *execution) {
	defer s.runWG.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, exec.jobID)
		s.mu.Unlock()
	}()

	log := s.logger.With(logger.String("job_id", exec.jobID), logger.String("target", exec.target))

	if err := s.sem.Acquire(s.runCtx, 1); err != nil {
		log.Warn("Job dropped before start", logger.Error(err))
		return
	}
	defer s.sem.Release(1)

	if s.locker != nil {
		lock, acquired, err := s.locker.TryLock(s.runCtx, exec.jobID)
		if err != nil {
			log.Error("Failed to acquire job lock", logger.Error(err))
			s.metrics.RecordFire(exec.target, metrics.OutcomeFailed)
			return
		}
		if !acquired {
			log.Info("Job running in another process, skipping fire")
			s.metrics.RecordFire(exec.target, metrics.OutcomeLocked)
			return
		}
		defer func() {
			if unlockErr := lock.Unlock(context.WithoutCancel(s.runCtx)); unlockErr != nil {
				log.Warn("Failed to release job lock", logger.Error(unlockErr))
			}
		}()
		stopHeartbeat := s.keepLock(log, lock)
		defer stopHeartbeat()
	}

	s.transition(log, exec, StateFiring)

	start := s.now()
	s.metrics.RunStarted()
	err := s.invoke(exec)
	duration := s.now().Sub(start)
	s.metrics.RunFinished()
	s.metrics.ObserveRun(exec.target, duration)

	if err != nil {
		log.Warn("Job run failed", logger.Duration("duration", duration), logger.Error(err))
		s.metrics.RecordFire(exec.target, metrics.OutcomeFailed)
	} else {
		log.Info("Job run completed", logger.Duration("duration", duration))
		s.metrics.RecordFire(exec.target, metrics.OutcomeSucceeded)
	}

	if exec.oneShot || !s.stillScheduled(exec.jobID) {
		s.transition(log, exec, StateRemoved)
	} else {
		s.transition(log, exec, StateScheduled)
	}
	if IsTerminalState(exec.state) {
		log.Info("Job finished its last run")
	}
}

// keepLock extends lock every third of its TTL until the returned func is called.
func (s *Scheduler) keepLock(log logger.Logger, lock coordination.Lock) func() {
	ttl := lock.TTL()
	if ttl <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(s.runCtx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(ttl / lockHeartbeatDivisor)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lock.Extend(ctx, ttl)
				if err == nil || ctx.Err() != nil {
					continue
				}
				log.Warn("Failed to extend job lock", logger.Error(err))
				if errors.Is(err, coordination.ErrLockNotHeld) {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// stillScheduled reports whether id is still stored, i.e. was not removed mid-run.
func (s *Scheduler) stillScheduled(id string) bool {
	_, err := s.store.Get(context.WithoutCancel(s.runCtx), id)
	return !errors.Is(err, jobstore.ErrJobNotFound)
}

// invoke runs the job function, turning a panic into an error.
func (s *Scheduler) invoke(exec *execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return exec.fn(s.runCtx, exec.args)
}

func (s *Scheduler) transition(log logger.Logger, exec *execution, to JobState) {
	from := exec.state
	if err := ValidateStateTransition(from, to); err != nil {
		log.Error("Unexpected job state change", logger.Error(err))
		return
	}
	exec.state = to
	log.Debug("Job state changed", logger.String("from", string(from)), logger.String("to", string(to)))
}

func (s *Scheduler) refreshScheduledGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	recs, err := s.store.List(ctx)
	if err != nil {
		return
	}
	s.metrics.SetScheduled(len(recs))
}

// defaultAnchor picks the first fire time of an interval job created without
// one: now+every, or the least busy slot before that when staggering is on.
func (s *Scheduler) defaultAnchor(ctx context.Context, now time.Time, every time.Duration) time.Time {
	fallback := now.Add(every)
	if s.staggerSlot <= 0 {
		return fallback
	}

	recs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to load jobs for placement", logger.Error(err))
		return fallback
	}

	buckets := NewBucketMap(s.staggerSlot)
	for _, rec := range recs {
		buckets.AddJob(rec.ID, rec.NextFireTime)
	}

	anchor, ok := buckets.FindLeastLoaded(now, fallback)
	if !ok {
		return fallback
	}
	return anchor
}

// normalizeTrigger validates t and dereferences pointer variants.
func normalizeTrigger(t Trigger) (Trigger, error) {
	switch tr := t.(type) {
	case IntervalTrigger:
		if err := tr.validate(); err != nil {
			return nil, err
		}
		return tr, nil
	case *IntervalTrigger:
		if tr == nil {
			return nil, fmt.Errorf("%w: nil interval trigger", ErrInvalidTrigger)
		}
		return normalizeTrigger(*tr)
	case *DateTrigger:
		if tr == nil {
			return nil, fmt.Errorf("%w: nil date trigger", ErrInvalidTrigger)
		}
		return *tr, nil
	case *CronTrigger:
		if tr == nil {
			return nil, fmt.Errorf("%w: nil cron trigger", ErrInvalidTrigger)
		}
		if tr.schedule == nil || tr.Location == nil {
			// Built as a literal rather than through NewCronTrigger.
			parsed, err := NewCronTrigger(tr.Expression, tr.Location)
			if err != nil {
				return nil, err
			}
			return parsed, nil
		}
		return tr, nil
	default:
		return t, nil
	}
}
