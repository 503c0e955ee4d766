// Package history persists tracked products and their append-only price history.
package history

//go:generate mockgen -source=store.go -destination=../../testutils/mocks/history/store.go -package=history

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

var (
	// ErrProductNotFound is returned for an unknown product id.
	ErrProductNotFound = errors.New("product not found")
	// ErrOutOfOrder is returned when a record is older than the latest stored one.
	ErrOutOfOrder = errors.New("tracking record is older than the latest record")
)

// Store is the tracked-product history collaborator of the tracking job.
// Records are only ever appended; timestamps never decrease within a product.
type Store interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	// DeleteProduct removes a product together with its history.
	DeleteProduct(ctx context.Context, productID string) error
	AppendRecord(ctx context.Context, productID string, record domain.TrackingRecord) error
	Records(ctx context.Context, productID string) ([]domain.TrackingRecord, error)
}
