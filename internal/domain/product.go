package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SellerInfo describes who sells a product and where it ships from.
// Either field may be nil; both nil is a valid, if uninformative, result.
type SellerInfo struct {
	ShipsFrom *string `json:"shipsFrom"`
	SoldBy    *string `json:"soldBy"`
}

// IsEmpty reports whether neither field is set.
func (s SellerInfo) IsEmpty() bool {
	return s.ShipsFrom == nil && s.SoldBy == nil
}

// DiscountKind classifies a coupon value.
type DiscountKind string

// Discount kinds.
const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is a coupon parsed from promotional text, e.g. {"$5", fixed} or {"15%", percentage}.
type Discount struct {
	Value string       `json:"value"`
	Kind  DiscountKind `json:"discountType"`
}

// ScrapedProduct is the canonical result of one fetch, extract and normalize
// cycle. Title and ImageURL are always set; the rest may be nil.
// Instances are never mutated after construction.
type ScrapedProduct struct {
	Title    string
	ImageURL string
	Price    *decimal.Decimal
	Seller   *SellerInfo
	Discount *Discount
}

type scrapedProductJSON struct {
	Title    string       `json:"productTitle"`
	Image    string       `json:"productImage"`
	Price    *json.Number `json:"productPrice"`
	Seller   *SellerInfo  `json:"productSeller"`
	Discount *Discount    `json:"productCoupon"`
}

// MarshalJSON encodes the product in the canonical wire shape, with the
// price as a JSON number and absent fields as null.
func (p ScrapedProduct) MarshalJSON() ([]byte, error) {
	out := scrapedProductJSON{
		Title:    p.Title,
		Image:    p.ImageURL,
		Seller:   p.Seller,
		Discount: p.Discount,
	}
	if p.Price != nil {
		n := json.Number(p.Price.String())
		out.Price = &n
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the canonical wire shape.
func (p *ScrapedProduct) UnmarshalJSON(data []byte) error {
	var in scrapedProductJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*p = ScrapedProduct{
		Title:    in.Title,
		ImageURL: in.Image,
		Seller:   in.Seller,
		Discount: in.Discount,
	}
	if in.Price != nil {
		d, err := decimal.NewFromString(in.Price.String())
		if err != nil {
			return err
		}
		p.Price = &d
	}
	return nil
}

// Product is a tracked marketplace listing.
type Product struct {
	ID        string    `db:"id"         json:"id"`
	Platform  Platform  `db:"platform"   json:"platform"`
	URL       string    `db:"url"        json:"productLink"`
	Name      string    `db:"name"       json:"productName"`
	ImageURL  *string   `db:"image_url"  json:"productImage"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TrackingRecord is one appended observation in a product's price history.
type TrackingRecord struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Seller    *SellerInfo     `json:"seller"`
	Discount  *Discount       `json:"coupon"`
}
