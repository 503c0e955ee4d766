package tracking_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/fetcher"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/history"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/identity"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/normalizer"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/retry"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/tracking"
	historymocks "github.com/jonesrussell/north-cloud/pricetracker/testutils/mocks/history"
)

const productURL = "https://www.amazon.com/dp/B0ACME700"

var completedAt = time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)

// fakeFetcher replays queued responses and records the options it saw.
type fakeFetcher struct {
	mu        sync.Mutex
	responses []fakeResponse
	seen      []fetcher.Options
}

type fakeResponse struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, opts fetcher.Options) (*domain.RawPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, opts)
	if len(f.responses) == 0 {
		return nil, &fetcher.FetchFailure{URL: url, Reason: fetcher.ReasonNetwork}
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RawPage{URL: url, StatusCode: 200, Body: r.body}, nil
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "extractor", "testdata", name))
	require.NoError(t, err)
	return data
}

func amazonProduct() *domain.Product {
	return &domain.Product{
		ID:       "p-1",
		Platform: domain.PlatformAmazon,
		URL:      productURL,
		Name:     "Acme SoundWave 700",
	}
}

func fixedClock() time.Time { return completedAt }

func TestRun_AppendsRecord(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	f := &fakeFetcher{responses: []fakeResponse{{body: fixture(t, "amazon.html")}}}

	store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)
	store.EXPECT().
		AppendRecord(gomock.Any(), "p-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, rec domain.TrackingRecord) error {
			assert.Equal(t, "1234.56", rec.Price.String())
			assert.True(t, completedAt.Equal(rec.Timestamp))
			require.NotNil(t, rec.Discount)
			assert.Equal(t, domain.DiscountPercentage, rec.Discount.Kind)
			return nil
		})

	job := tracking.New(store, f,
		tracking.WithClock(fixedClock),
		tracking.WithIdentity(identity.NewStatic([]string{"UA-test"}, nil)),
	)

	rec, err := job.Run(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1234.56", rec.Price.String())
	require.NotNil(t, rec.Seller)
	assert.Equal(t, "Acme Audio Store", *rec.Seller.SoldBy)

	require.Len(t, f.seen, 1)
	assert.Equal(t, []string{"UA-test"}, f.seen[0].UserAgents)
}

func TestRun_FailuresLeaveHistoryUntouched(t *testing.T) {
	t.Parallel()

	noTitle := []byte(`<html><body><div id="imgTagWrapperId"><img src="https://img.example/a.jpg"></div></body></html>`)
	noPrice := []byte(`<html><body><span id="productTitle">Widget</span>` +
		`<div id="imgTagWrapperId"><img src="https://img.example/a.jpg"></div></body></html>`)
	blocked := &fetcher.FetchFailure{URL: productURL, StatusCode: 503, Reason: fetcher.ReasonHTTPStatus}

	tests := []struct {
		name      string
		response  fakeResponse
		wantStage tracking.Stage
		wantField string
	}{
		{name: "fetch failure", response: fakeResponse{err: blocked}, wantStage: tracking.StageFetch},
		{name: "missing title", response: fakeResponse{body: noTitle}, wantStage: tracking.StageValidation, wantField: normalizer.FieldTitle},
		{name: "missing price", response: fakeResponse{body: noPrice}, wantStage: tracking.StageValidation, wantField: normalizer.FieldPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			store := historymocks.NewMockStore(ctrl)
			store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)
			store.EXPECT().AppendRecord(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			job := tracking.New(store, &fakeFetcher{responses: []fakeResponse{tt.response}})

			rec, err := job.Run(context.Background(), "p-1")
			assert.Nil(t, rec)

			var failure *tracking.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.wantStage, failure.Stage)
			assert.Equal(t, "p-1", failure.ProductID)

			if tt.wantField != "" {
				var vErr *normalizer.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantField, vErr.Field)
			} else {
				var fErr *fetcher.FetchFailure
				require.ErrorAs(t, err, &fErr)
				assert.Equal(t, 503, fErr.StatusCode)
			}
		})
	}
}

func TestRun_UnknownProduct(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	store.EXPECT().GetProduct(gomock.Any(), "nope").Return(nil, history.ErrProductNotFound)

	f := &fakeFetcher{}
	_, err := tracking.New(store, f).Run(context.Background(), "nope")

	var failure *tracking.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, tracking.StageLoad, failure.Stage)
	assert.True(t, errors.Is(err, history.ErrProductNotFound))
	assert.Empty(t, f.seen)
}

func TestRun_AppendFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)
	store.EXPECT().AppendRecord(gomock.Any(), "p-1", gomock.Any()).Return(history.ErrOutOfOrder)

	job := tracking.New(store, &fakeFetcher{responses: []fakeResponse{{body: fixture(t, "amazon.html")}}})
	_, err := job.Run(context.Background(), "p-1")

	var failure *tracking.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, tracking.StageAppend, failure.Stage)
	assert.True(t, errors.Is(err, history.ErrOutOfOrder))
}

func TestRun_RetriesTemporaryFetchFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)
	store.EXPECT().AppendRecord(gomock.Any(), "p-1", gomock.Any()).Return(nil)

	f := &fakeFetcher{responses: []fakeResponse{
		{err: &fetcher.FetchFailure{URL: productURL, Reason: fetcher.ReasonTimeout}},
		{body: fixture(t, "amazon.html")},
	}}

	job := tracking.New(store, f, tracking.WithRetry(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}))

	_, err := job.Run(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Len(t, f.seen, 2)
}

func TestRun_DoesNotRetryPermanentFetchFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)

	f := &fakeFetcher{responses: []fakeResponse{
		{err: &fetcher.FetchFailure{URL: productURL, StatusCode: 404, Reason: fetcher.ReasonHTTPStatus}},
		{body: fixture(t, "amazon.html")},
	}}

	job := tracking.New(store, f, tracking.WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	_, err := job.Run(context.Background(), "p-1")
	require.Error(t, err)
	assert.Len(t, f.seen, 1)
}

func TestTarget(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	store.EXPECT().GetProduct(gomock.Any(), "p-1").Return(amazonProduct(), nil)
	store.EXPECT().AppendRecord(gomock.Any(), "p-1", gomock.Any()).Return(nil)

	job := tracking.New(store, &fakeFetcher{responses: []fakeResponse{{body: fixture(t, "amazon.html")}}})
	reg := scheduler.NewRegistry()
	job.Register(reg)

	fn, ok := reg.Lookup(tracking.TargetRef)
	require.True(t, ok)

	assert.ErrorIs(t, fn(context.Background(), map[string]any{}), tracking.ErrMissingProductID)
	assert.ErrorIs(t, fn(context.Background(), map[string]any{tracking.ArgProductID: 42}), tracking.ErrMissingProductID)
	require.NoError(t, fn(context.Background(), map[string]any{tracking.ArgProductID: "p-1"}))
}

type recordingCreator struct {
	specs []scheduler.JobSpec
}

func (r *recordingCreator) CreateJob(_ context.Context, spec scheduler.JobSpec) (string, error) {
	r.specs = append(r.specs, spec)
	return spec.ID, nil
}

func TestTrack_DerivesJobIDFromProduct(t *testing.T) {
	t.Parallel()

	creator := &recordingCreator{}
	trigger := scheduler.IntervalTrigger{Every: 6 * time.Hour}

	id, err := tracking.Track(context.Background(), creator, "p-1", trigger)
	require.NoError(t, err)
	assert.Equal(t, tracking.JobID("p-1"), id)

	_, err = tracking.Track(context.Background(), creator, "p-1", trigger)
	require.NoError(t, err)

	require.Len(t, creator.specs, 2)
	assert.Equal(t, creator.specs[0].ID, creator.specs[1].ID)
	assert.Equal(t, tracking.TargetRef, creator.specs[0].TargetRef)
	assert.Equal(t, map[string]any{tracking.ArgProductID: "p-1"}, creator.specs[0].Arguments)

	_, err = tracking.Track(context.Background(), creator, "", trigger)
	assert.ErrorIs(t, err, tracking.ErrMissingProductID)
}
