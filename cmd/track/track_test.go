package track

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/tracking"
	historymocks "github.com/jonesrussell/north-cloud/pricetracker/testutils/mocks/history"
)

type fakeCreator struct {
	err   error
	specs []scheduler.JobSpec
}

func (f *fakeCreator) CreateJob(_ context.Context, spec scheduler.JobSpec) (string, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return "", f.err
	}
	return spec.ID, nil
}

func newProduct() *domain.Product {
	return &domain.Product{ID: "p-1", Platform: domain.PlatformEbay, URL: "https://www.ebay.com/itm/1", Name: "Acme"}
}

func TestTrackProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := historymocks.NewMockStore(ctrl)
	product := newProduct()

	store.EXPECT().CreateProduct(gomock.Any(), product).Return(nil)
	store.EXPECT().DeleteProduct(gomock.Any(), gomock.Any()).Times(0)

	jobs := &fakeCreator{}
	jobID, err := trackProduct(ctx, store, jobs, product, scheduler.IntervalTrigger{Every: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, tracking.JobID("p-1"), jobID)
	require.Len(t, jobs.specs, 1)
	assert.Equal(t, tracking.TargetRef, jobs.specs[0].TargetRef)
}

func TestTrackProduct_RemovesProductWhenSchedulingFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	product := newProduct()
	trigger := scheduler.IntervalTrigger{Every: time.Hour}

	t.Run("product removed", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := historymocks.NewMockStore(ctrl)
		gomock.InOrder(
			store.EXPECT().CreateProduct(gomock.Any(), product).Return(nil),
			store.EXPECT().DeleteProduct(gomock.Any(), "p-1").Return(nil),
		)

		_, err := trackProduct(ctx, store, &fakeCreator{err: scheduler.ErrInvalidTrigger}, product, trigger)
		assert.ErrorIs(t, err, scheduler.ErrInvalidTrigger)
	})

	t.Run("removal fails too", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := historymocks.NewMockStore(ctrl)
		dbDown := errors.New("database is closed")
		store.EXPECT().CreateProduct(gomock.Any(), product).Return(nil)
		store.EXPECT().DeleteProduct(gomock.Any(), "p-1").Return(dbDown)

		_, err := trackProduct(ctx, store, &fakeCreator{err: scheduler.ErrUnknownTarget}, product, trigger)
		assert.ErrorIs(t, err, scheduler.ErrUnknownTarget)
		assert.ErrorIs(t, err, dbDown)
	})

	t.Run("create fails", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := historymocks.NewMockStore(ctrl)
		dup := errors.New("duplicate product")
		store.EXPECT().CreateProduct(gomock.Any(), product).Return(dup)

		jobs := &fakeCreator{}
		_, err := trackProduct(ctx, store, jobs, product, trigger)
		assert.ErrorIs(t, err, dup)
		assert.Empty(t, jobs.specs)
	})
}
