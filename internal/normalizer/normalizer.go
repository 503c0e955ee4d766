// Package normalizer assembles extracted fields into the canonical ScrapedProduct.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

// maxPriceScale is the largest number of fractional digits a price may carry.
const maxPriceScale = 2

// Field names reported in ValidationError.
const (
	FieldTitle = "title"
	FieldImage = "imageUrl"
	FieldPrice = "price"
)

// ValidationError reports a field that breaks the canonical product contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Fields are the partial values produced by an extractor. Nil means not found.
type Fields struct {
	Title  *string
	Image  *string
	Price  *decimal.Decimal
	Seller *domain.SellerInfo
	Coupon *domain.Discount
}

// Normalize validates f and builds a ScrapedProduct from it.
// Title and image are mandatory. A price, when present, must be positive with
// at most two fractional digits. Seller and coupon pass through as given.
func Normalize(f Fields) (*domain.ScrapedProduct, error) {
	title, err := required(FieldTitle, f.Title)
	if err != nil {
		return nil, err
	}

	image, err := required(FieldImage, f.Image)
	if err != nil {
		return nil, err
	}

	product := &domain.ScrapedProduct{
		Title:    title,
		ImageURL: image,
	}

	if f.Price != nil {
		price, priceErr := validatePrice(*f.Price)
		if priceErr != nil {
			return nil, priceErr
		}
		product.Price = &price
	}

	if f.Seller != nil {
		seller := *f.Seller
		product.Seller = &seller
	}

	if f.Coupon != nil {
		coupon := *f.Coupon
		product.Discount = &coupon
	}

	return product, nil
}

func required(field string, v *string) (string, error) {
	if v == nil {
		return "", &ValidationError{Field: field, Reason: "missing"}
	}

	s := strings.TrimSpace(*v)
	if s == "" {
		return "", &ValidationError{Field: field, Reason: "empty"}
	}
	return s, nil
}

func validatePrice(p decimal.Decimal) (decimal.Decimal, error) {
	if !p.IsPositive() {
		return decimal.Decimal{}, &ValidationError{
			Field:  FieldPrice,
			Reason: fmt.Sprintf("must be positive, got %s", p.String()),
		}
	}

	trimmed := p.Truncate(maxPriceScale)
	if !trimmed.Equal(p) {
		return decimal.Decimal{}, &ValidationError{
			Field:  FieldPrice,
			Reason: fmt.Sprintf("more than %d fractional digits: %s", maxPriceScale, p.String()),
		}
	}
	return trimmed, nil
}
