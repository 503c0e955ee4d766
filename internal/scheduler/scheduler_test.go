package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/coordination"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/database"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/jobstore"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
)

const (
	testCheckInterval = 5 * time.Millisecond
	waitFor           = 2 * time.Second
)

func newStore(t *testing.T) *jobstore.SQLStore {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "jobs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return jobstore.NewSQLStore(db)
}

func noop(context.Context, map[string]any) error { return nil }

func registryWith(ref string, fn scheduler.JobFunc) *scheduler.Registry {
	reg := scheduler.NewRegistry()
	reg.Register(ref, fn)
	return reg
}

func stopScheduler(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestCreateJob_ReplacesExistingID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	s := scheduler.New(store, registryWith("noop", noop), nil)

	id, err := s.CreateJob(ctx, scheduler.JobSpec{
		ID:        "product-1",
		TargetRef: "noop",
		Arguments: map[string]any{"product_id": "1"},
		Trigger:   scheduler.IntervalTrigger{Every: time.Hour},
	})
	require.NoError(t, err)
	assert.Equal(t, "product-1", id)

	_, err = s.CreateJob(ctx, scheduler.JobSpec{
		ID:        "product-1",
		TargetRef: "noop",
		Arguments: map[string]any{"product_id": "1"},
		Trigger:   scheduler.IntervalTrigger{Every: 2 * time.Hour},
	})
	require.NoError(t, err)

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	interval, ok := jobs[0].Trigger.(scheduler.IntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, interval.Every)
	assert.Equal(t, scheduler.StateScheduled, jobs[0].State)
}

func TestCreateJob_GeneratesID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := scheduler.New(newStore(t), registryWith("noop", noop), nil)

	a, err := s.CreateJob(ctx, scheduler.JobSpec{TargetRef: "noop", Trigger: scheduler.DateTrigger{At: time.Now().Add(time.Hour)}})
	require.NoError(t, err)
	b, err := s.CreateJob(ctx, scheduler.JobSpec{TargetRef: "noop", Trigger: scheduler.DateTrigger{At: time.Now().Add(time.Hour)}})
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)

	job, err := s.GetJob(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "noop", job.TargetRef)
}

func TestCreateJob_Rejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := scheduler.New(newStore(t), registryWith("noop", noop), nil)

	_, err := s.CreateJob(ctx, scheduler.JobSpec{TargetRef: "missing", Trigger: scheduler.IntervalTrigger{Every: time.Minute}})
	assert.True(t, errors.Is(err, scheduler.ErrUnknownTarget))

	_, err = s.CreateJob(ctx, scheduler.JobSpec{TargetRef: "noop"})
	assert.True(t, errors.Is(err, scheduler.ErrInvalidTrigger))

	_, err = s.CreateJob(ctx, scheduler.JobSpec{TargetRef: "noop", Trigger: scheduler.IntervalTrigger{Every: -time.Second}})
	assert.True(t, errors.Is(err, scheduler.ErrInvalidTrigger))
}

func TestRemoveJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	s := scheduler.New(store, registryWith("noop", noop), nil)

	_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: "keep", TargetRef: "noop", Trigger: scheduler.IntervalTrigger{Every: time.Hour}})
	require.NoError(t, err)

	removed, err := s.RemoveJob(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, removed)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].ID)

	removed, err = s.RemoveJob(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.GetJob(ctx, "keep")
	assert.True(t, errors.Is(err, scheduler.ErrJobNotFound))

	state, err := s.State(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateRemoved, state)
}

func TestScheduler_JobsSurviveRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	first := scheduler.New(store, registryWith("noop", noop), nil)
	_, err := first.CreateJob(ctx, scheduler.JobSpec{ID: "durable", TargetRef: "noop", Trigger: scheduler.IntervalTrigger{Every: time.Hour}})
	require.NoError(t, err)

	var ran atomic.Int32
	second := scheduler.New(store, registryWith("noop", func(context.Context, map[string]any) error {
		ran.Add(1)
		return nil
	}), nil, scheduler.WithCheckInterval(testCheckInterval))

	job, err := second.GetJob(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "noop", job.TargetRef)

	require.NoError(t, second.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	stopScheduler(t, second)

	assert.Zero(t, ran.Load(), "job is not due for an hour")
}

func TestScheduler_SingleFlightPerJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})

	var starts, running, maxRunning atomic.Int32
	slow := func(ctx context.Context, _ map[string]any) error {
		starts.Add(1)
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := scheduler.New(newStore(t), registryWith("slow", slow), nil,
		scheduler.WithCheckInterval(testCheckInterval),
		scheduler.WithMetrics(m),
	)

	_, err := s.CreateJob(ctx, scheduler.JobSpec{
		ID:        "product-p",
		TargetRef: "slow",
		Trigger:   scheduler.IntervalTrigger{Every: 10 * time.Millisecond, Start: time.Now()},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return starts.Load() == 1 }, waitFor, time.Millisecond)

	// Several more fires come due while the first run is blocked.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())

	state, err := s.State(ctx, "product-p")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateFiring, state)
	assert.Positive(t, testutil.ToFloat64(m.JobsFiredTotal.WithLabelValues("slow", metrics.OutcomeCoalesced)))

	close(release)
	require.Eventually(t, func() bool { return starts.Load() >= 2 }, waitFor, time.Millisecond)

	stopScheduler(t, s)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_DistinctJobsRunInParallel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})
	var running atomic.Int32

	block := func(ctx context.Context, _ map[string]any) error {
		running.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	s := scheduler.New(newStore(t), registryWith("block", block), nil,
		scheduler.WithCheckInterval(testCheckInterval),
		scheduler.WithMaxWorkers(4),
	)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: id, TargetRef: "block", Trigger: scheduler.DateTrigger{At: time.Now()}})
		require.NoError(t, err)
	}
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return running.Load() == 3 }, waitFor, time.Millisecond)
	close(release)
	stopScheduler(t, s)
}

func TestScheduler_WorkerPoolBound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})
	var running, maxRunning atomic.Int32

	block := func(ctx context.Context, _ map[string]any) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	s := scheduler.New(newStore(t), registryWith("block", block), nil,
		scheduler.WithCheckInterval(testCheckInterval),
		scheduler.WithMaxWorkers(2),
	)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: id, TargetRef: "block", Trigger: scheduler.DateTrigger{At: time.Now()}})
		require.NoError(t, err)
	}
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return running.Load() == 2 }, waitFor, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), maxRunning.Load())

	close(release)
	stopScheduler(t, s)
}

func TestScheduler_DateJobFiresOnceAndIsRemoved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var ran atomic.Int32
	var gotArgs sync.Map

	fn := func(_ context.Context, args map[string]any) error {
		ran.Add(1)
		gotArgs.Store("product_id", args["product_id"])
		return nil
	}

	s := scheduler.New(newStore(t), registryWith("once", fn), nil, scheduler.WithCheckInterval(testCheckInterval))
	_, err := s.CreateJob(ctx, scheduler.JobSpec{
		ID:        "one-shot",
		TargetRef: "once",
		Arguments: map[string]any{"product_id": "p-9"},
		Trigger:   scheduler.DateTrigger{At: time.Now().Add(-time.Minute)},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return ran.Load() == 1 }, waitFor, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stopScheduler(t, s)

	assert.Equal(t, int32(1), ran.Load())
	v, _ := gotArgs.Load("product_id")
	assert.Equal(t, "p-9", v)

	_, err = s.GetJob(ctx, "one-shot")
	assert.True(t, errors.Is(err, scheduler.ErrJobNotFound))
}

func TestScheduler_FailedRunKeepsSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var calls atomic.Int32

	failing := func(context.Context, map[string]any) error {
		calls.Add(1)
		return errors.New("fetch failed")
	}
	panicking := func(context.Context, map[string]any) error {
		calls.Add(1)
		panic("boom")
	}

	reg := scheduler.NewRegistry()
	reg.Register("failing", failing)
	reg.Register("panicking", panicking)

	s := scheduler.New(newStore(t), reg, nil, scheduler.WithCheckInterval(testCheckInterval))
	_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: "f", TargetRef: "failing", Trigger: scheduler.IntervalTrigger{Every: 10 * time.Millisecond, Start: time.Now()}})
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, scheduler.JobSpec{ID: "p", TargetRef: "panicking", Trigger: scheduler.IntervalTrigger{Every: 10 * time.Millisecond, Start: time.Now()}})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return calls.Load() >= 6 }, waitFor, time.Millisecond)
	stopScheduler(t, s)

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestScheduler_MissedFiresCoalesceIntoOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	var ran atomic.Int32

	// Written while "offline": the job is ten intervals overdue.
	kind, params, err := scheduler.EncodeTrigger(scheduler.IntervalTrigger{Every: time.Minute, Start: time.Now().Add(-10 * time.Minute)})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, &jobstore.Record{
		ID:            "overdue",
		TriggerType:   kind,
		TriggerParams: params,
		TargetRef:     "count",
		NextFireTime:  time.Now().Add(-10 * time.Minute),
	}))

	s := scheduler.New(store, registryWith("count", func(context.Context, map[string]any) error {
		ran.Add(1)
		return nil
	}), nil, scheduler.WithCheckInterval(testCheckInterval))
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return ran.Load() == 1 }, waitFor, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stopScheduler(t, s)

	assert.Equal(t, int32(1), ran.Load())

	job, err := s.GetJob(ctx, "overdue")
	require.NoError(t, err)
	assert.True(t, job.NextFireTime.After(time.Now()))
}

type refusingLocker struct{ attempts atomic.Int32 }

func (l *refusingLocker) TryLock(context.Context, string) (coordination.Lock, bool, error) {
	l.attempts.Add(1)
	return nil, false, nil
}

func TestScheduler_SkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var ran atomic.Int32
	locker := &refusingLocker{}

	s := scheduler.New(newStore(t), registryWith("count", func(context.Context, map[string]any) error {
		ran.Add(1)
		return nil
	}), nil,
		scheduler.WithCheckInterval(testCheckInterval),
		scheduler.WithLocker(locker),
	)
	_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: "x", TargetRef: "count", Trigger: scheduler.DateTrigger{At: time.Now()}})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return locker.attempts.Load() == 1 }, waitFor, time.Millisecond)
	stopScheduler(t, s)
	assert.Zero(t, ran.Load())
}

type heldLock struct {
	ttl      time.Duration
	extends  atomic.Int32
	unlocked atomic.Bool
	// extendedAfterUnlock is set when Extend runs once Unlock has been called.
	extendedAfterUnlock atomic.Bool
}

func (l *heldLock) Unlock(context.Context) error {
	l.unlocked.Store(true)
	return nil
}

func (l *heldLock) Extend(_ context.Context, ttl time.Duration) error {
	if l.unlocked.Load() {
		l.extendedAfterUnlock.Store(true)
	}
	if ttl == l.ttl {
		l.extends.Add(1)
	}
	return nil
}

func (l *heldLock) TTL() time.Duration { return l.ttl }

type grantingLocker struct{ lock *heldLock }

func (l *grantingLocker) TryLock(context.Context, string) (coordination.Lock, bool, error) {
	return l.lock, true, nil
}

func TestScheduler_ExtendsLockDuringLongRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lock := &heldLock{ttl: 30 * time.Millisecond}
	release := make(chan struct{})
	var finished atomic.Bool

	s := scheduler.New(newStore(t), registryWith("long", func(context.Context, map[string]any) error {
		<-release
		finished.Store(true)
		return nil
	}), nil,
		scheduler.WithCheckInterval(testCheckInterval),
		scheduler.WithLocker(&grantingLocker{lock: lock}),
	)
	_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: "long", TargetRef: "long", Trigger: scheduler.DateTrigger{At: time.Now()}})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	// The run outlives several TTLs; the lock has to be refreshed meanwhile.
	require.Eventually(t, func() bool { return lock.extends.Load() >= 3 }, waitFor, time.Millisecond)
	assert.False(t, lock.unlocked.Load())

	close(release)
	require.Eventually(t, lock.unlocked.Load, waitFor, time.Millisecond)
	stopScheduler(t, s)

	assert.True(t, finished.Load())
	assert.False(t, lock.extendedAfterUnlock.Load())
}

func TestScheduler_WakesForEarliestJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fired := make(chan struct{}, 1)

	s := scheduler.New(newStore(t), registryWith("soon", func(context.Context, map[string]any) error {
		fired <- struct{}{}
		return nil
	}), nil, scheduler.WithCheckInterval(time.Hour))
	require.NoError(t, s.Start(ctx))
	defer stopScheduler(t, s)

	_, err := s.CreateJob(ctx, scheduler.JobSpec{
		TargetRef: "soon",
		Trigger:   scheduler.DateTrigger{At: time.Now().Add(50 * time.Millisecond)},
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(waitFor):
		t.Fatal("job did not fire before the next check interval")
	}
}

func TestScheduler_RemovedWhileRunningIsNotRescheduled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	s := scheduler.New(newStore(t), registryWith("slow", func(context.Context, map[string]any) error {
		close(started)
		<-release
		return nil
	}), nil, scheduler.WithCheckInterval(testCheckInterval))
	_, err := s.CreateJob(ctx, scheduler.JobSpec{
		ID:        "slow",
		TargetRef: "slow",
		Trigger:   scheduler.IntervalTrigger{Every: time.Hour, Start: time.Now().Add(20 * time.Millisecond)},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	<-started
	state, err := s.State(ctx, "slow")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateFiring, state)

	removed, err := s.RemoveJob(ctx, "slow")
	require.NoError(t, err)
	assert.True(t, removed)

	close(release)
	require.Eventually(t, func() bool {
		st, stErr := s.State(ctx, "slow")
		return stErr == nil && st == scheduler.StateRemoved
	}, waitFor, time.Millisecond)
	stopScheduler(t, s)

	_, err = s.GetJob(ctx, "slow")
	assert.True(t, errors.Is(err, scheduler.ErrJobNotFound))
}

func TestScheduler_StartTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := scheduler.New(newStore(t), scheduler.NewRegistry(), nil, scheduler.WithCheckInterval(testCheckInterval))

	require.NoError(t, s.Start(ctx))
	assert.True(t, errors.Is(s.Start(ctx), scheduler.ErrAlreadyStarted))
	stopScheduler(t, s)
}

func TestScheduler_StopCancelsAfterDeadline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{})
	var cancelled atomic.Bool

	s := scheduler.New(newStore(t), registryWith("stuck", func(ctx context.Context, _ map[string]any) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}), nil, scheduler.WithCheckInterval(testCheckInterval))

	_, err := s.CreateJob(ctx, scheduler.JobSpec{ID: "stuck", TargetRef: "stuck", Trigger: scheduler.DateTrigger{At: time.Now()}})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	<-started

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = s.Stop(stopCtx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, cancelled.Load())
}
