package common

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/coordination"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/fetcher"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/identity"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/retry"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/tracking"
)

// Runtime wires the stores, fetcher, tracking job and scheduler for a command.
type Runtime struct {
	Deps       CommandDeps
	Stores     *Stores
	Fetcher    *fetcher.Fetcher
	Identities *identity.Static
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Tracker    *tracking.Job
	Scheduler  *scheduler.Scheduler

	redis *redis.Client
}

// RuntimeOptions selects optional runtime components.
type RuntimeOptions struct {
	// Coordination connects to Redis, when configured, and guards every run
	// with a cross-process lock.
	Coordination bool
}

// NewRuntime builds the runtime from deps.
func NewRuntime(ctx context.Context, deps CommandDeps, opts RuntimeOptions) (*Runtime, error) {
	cfg := deps.Config

	stores, err := OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Deps:       deps,
		Stores:     stores,
		Identities: identity.NewStatic(cfg.Fetcher.UserAgents, cfg.Fetcher.Proxies),
		Fetcher: fetcher.New(fetcher.Config{
			Timeout:      cfg.Fetcher.Timeout,
			MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		}),
		Registry: prometheus.NewRegistry(),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = metrics.New(rt.Registry)

	rt.Tracker = tracking.New(stores.History, rt.Fetcher,
		tracking.WithIdentity(rt.Identities),
		tracking.WithLogger(deps.Logger.With(logger.String("component", "tracking"))),
		tracking.WithMetrics(rt.Metrics),
		tracking.WithRetry(retry.Config{
			MaxAttempts:  cfg.Tracking.RetryAttempts,
			InitialDelay: cfg.Tracking.RetryInitialDelay,
		}),
	)

	targets := scheduler.NewRegistry()
	rt.Tracker.Register(targets)

	schedOpts := []scheduler.Option{
		scheduler.WithCheckInterval(cfg.Scheduler.CheckInterval),
		scheduler.WithMaxWorkers(cfg.Scheduler.MaxWorkers),
		scheduler.WithMetrics(rt.Metrics),
		scheduler.WithStaggering(cfg.Scheduler.StaggerSlot),
	}

	if opts.Coordination && cfg.Redis.Address != "" {
		client, redisErr := coordination.NewRedisClient(ctx, coordination.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if redisErr != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", redisErr)
		}
		rt.redis = client
		schedOpts = append(schedOpts, scheduler.WithLocker(coordination.NewRedisLocker(client, cfg.Redis.LockTTL)))
		deps.Logger.Info("Distributed job lock enabled", logger.String("redis", cfg.Redis.Address))
	}

	rt.Scheduler = scheduler.New(stores.Jobs, targets,
		deps.Logger.With(logger.String("component", "scheduler")), schedOpts...)

	return rt, nil
}

// Close releases connections held by the runtime.
func (r *Runtime) Close() {
	r.Fetcher.Close()
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.Deps.Logger.Warn("Failed to close redis client", logger.Error(err))
		}
	}
	if err := r.Stores.Close(); err != nil {
		r.Deps.Logger.Warn("Failed to close database", logger.Error(err))
	}
	_ = r.Deps.Logger.Sync()
}
