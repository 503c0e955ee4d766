// Package tracking runs the scheduled price check for one tracked product and
// appends the result to its history.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/history"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/identity"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/normalizer"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/retry"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scrape"
)

// Job fetches, extracts and records the current price of tracked products.
type Job struct {
	products   history.Store
	fetcher    scrape.PageFetcher
	identities identity.Source
	retry      retry.Config
	metrics    *metrics.Metrics
	logger     logger.Logger
	now        func() time.Time
}

// Option configures a Job.
type Option func(*Job)

// WithIdentity sets the user-agent and proxy source. Without one the
// fetcher's default identity is used.
func WithIdentity(src identity.Source) Option {
	return func(j *Job) {
		j.identities = src
	}
}

// WithRetry retries temporary fetch failures. The default is a single attempt.
func WithRetry(cfg retry.Config) Option {
	return func(j *Job) {
		j.retry = cfg
	}
}

// WithMetrics records run outcomes and last prices on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) {
		j.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(j *Job) {
		if log != nil {
			j.logger = log
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// New creates a tracking Job.
func New(products history.Store, f scrape.PageFetcher, opts ...Option) *Job {
	j := &Job{
		products: products,
		fetcher:  f,
		retry:    retry.NoRetry(),
		logger:   logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one tracking run for productID. On success the appended
// record is returned; otherwise the error is a *Failure and history is
// unchanged. The record timestamp is the completion time of the scrape.
func (j *Job) Run(ctx context.Context, productID string) (*domain.TrackingRecord, error) {
	log := j.logger.With(logger.String("product_id", productID))
	start := j.now()

	product, err := j.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, j.fail(log, "", &Failure{ProductID: productID, Stage: StageLoad, Err: err})
	}
	platform := product.Platform.String()
	log = log.With(logger.String("platform", platform))

	opts, err := identity.Snapshot(ctx, j.identities)
	if err != nil {
		return nil, j.fail(log, platform, &Failure{ProductID: productID, Stage: StageIdentity, Err: err})
	}

	var page *domain.RawPage
	err = retry.Retry(ctx, j.retry, func(attempt int) error {
		if attempt > 1 {
			log.Info("Retrying fetch", logger.Int("attempt", attempt))
		}
		var fetchErr error
		page, fetchErr = j.fetcher.Fetch(ctx, product.URL, opts)
		return fetchErr
	})
	if err != nil {
		return nil, j.fail(log, platform, &Failure{ProductID: productID, Stage: StageFetch, Err: err})
	}

	scraped, err := scrape.Page(product.Platform, page)
	if err != nil {
		stage := StageExtract
		var scrapeErr *scrape.Error
		if errors.As(err, &scrapeErr) {
			stage = Stage(scrapeErr.Stage)
		}
		return nil, j.fail(log, platform, &Failure{ProductID: productID, Stage: stage, Err: err})
	}

	if scraped.Price == nil {
		missing := &normalizer.ValidationError{Field: normalizer.FieldPrice, Reason: "not found"}
		return nil, j.fail(log, platform, &Failure{ProductID: productID, Stage: StageValidation, Err: missing})
	}

	record := domain.TrackingRecord{
		Price:     *scraped.Price,
		Timestamp: j.now().UTC(),
		Seller:    scraped.Seller,
		Discount:  scraped.Discount,
	}

	if err = j.products.AppendRecord(ctx, productID, record); err != nil {
		return nil, j.fail(log, platform, &Failure{ProductID: productID, Stage: StageAppend, Err: err})
	}

	j.metrics.RecordTracking(platform, stageOK)
	j.metrics.SetLastPrice(productID, platform, record.Price.InexactFloat64())

	log.Info("Price recorded",
		logger.String("price", record.Price.String()),
		logger.Duration("duration", j.now().Sub(start)),
	)
	return &record, nil
}

func (j *Job) fail(log logger.Logger, platform string, f *Failure) error {
	if platform == "" {
		platform = "unknown"
	}
	j.metrics.RecordTracking(platform, string(f.Stage))

	log.Warn("Tracking run failed",
		logger.String("stage", string(f.Stage)),
		logger.Error(f.Err),
	)
	return f
}
