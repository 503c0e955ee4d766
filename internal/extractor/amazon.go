package extractor

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/discount"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

const (
	amazonOfferFeatureText = "span.offer-display-feature-text-message"
	amazonCouponBlock      = "#promoPriceBlockMessage_feature_div"
)

// Amazon extracts product fields from an Amazon product detail page.
type Amazon struct {
	doc *goquery.Document
}

// NewAmazon returns the Amazon variant.
func NewAmazon(doc *goquery.Document) Extractor {
	return &Amazon{doc: doc}
}

// Title reads the product title span.
func (a *Amazon) Title() (string, bool) {
	return firstOf(a.doc.Selection, "#productTitle", "#title_feature_div")
}

// Price reads the offscreen core price, e.g. "$1,234.56".
func (a *Amazon) Price() (decimal.Decimal, bool) {
	text, ok := firstOf(a.doc.Selection,
		"#corePrice_feature_div span.a-offscreen",
		"#corePriceDisplay_desktop_feature_div span.a-offscreen",
	)
	if !ok {
		return decimal.Decimal{}, false
	}
	return parsePrice(text)
}

// Image reads the main image src, falling back to data-old-hires.
func (a *Amazon) Image() (string, bool) {
	return firstAttr(a.doc.Selection, "#imgTagWrapperId img", "src", "data-old-hires")
}

// Seller reads the buy box "Ships from" and "Sold by" rows.
func (a *Amazon) Seller() (domain.SellerInfo, bool) {
	block := a.doc.Find("#desktop_qualifiedBuyBox #offer-display-features").First()
	if block.Length() == 0 {
		return domain.SellerInfo{}, false
	}

	return domain.SellerInfo{
		ShipsFrom: optional(firstText(block, "#fulfillerInfoFeature_feature_div "+amazonOfferFeatureText)),
		SoldBy:    optional(firstText(block, "#merchantInfoFeature_feature_div "+amazonOfferFeatureText)),
	}, true
}

// Coupon prefers the coupon label and falls back to the whole promo block.
func (a *Amazon) Coupon() (domain.Discount, bool) {
	block := a.doc.Find(amazonCouponBlock).First()
	if block.Length() == 0 {
		return domain.Discount{}, false
	}

	text, ok := firstText(block, "span.couponLabelText")
	if !ok {
		text = cleanText(block.Text())
	}
	return discount.Parse(text)
}
