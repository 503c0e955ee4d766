package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/discount"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

const ebayLocationPrefix = "Located in:"

// Ebay extracts product fields from an eBay listing page.
type Ebay struct {
	doc *goquery.Document
}

// NewEbay returns the eBay variant.
func NewEbay(doc *goquery.Document) Extractor {
	return &Ebay{doc: doc}
}

// Title reads the item title heading.
func (e *Ebay) Title() (string, bool) {
	return firstOf(e.doc.Selection, "h1.x-item-title__mainTitle", "h1#itemTitle")
}

// Price reads the primary price, e.g. "US $1,234.56".
func (e *Ebay) Price() (decimal.Decimal, bool) {
	text, ok := firstOf(e.doc.Selection, "div.x-price-primary span.ux-textspans", "div.x-price-primary")
	if !ok {
		return decimal.Decimal{}, false
	}
	return parsePrice(text)
}

// Image reads the first carousel image.
func (e *Ebay) Image() (string, bool) {
	return firstAttr(e.doc.Selection, "div.ux-image-carousel-item img", "src", "data-zoom-src")
}

// Seller takes the store name from the seller card and the item location
// as the ships-from value.
func (e *Ebay) Seller() (domain.SellerInfo, bool) {
	card := e.doc.Find("div.x-sellercard-atf").First()
	if card.Length() == 0 {
		return domain.SellerInfo{}, false
	}

	info := domain.SellerInfo{
		SoldBy: optional(firstText(card, ".x-sellercard-atf__info__about-seller a span")),
	}
	if loc, ok := firstText(e.doc.Selection, "div.ux-labels-values--itemLocation .ux-labels-values__values"); ok {
		loc = strings.TrimSpace(strings.TrimPrefix(loc, ebayLocationPrefix))
		info.ShipsFrom = optional(loc, loc != "")
	}
	return info, true
}

// Coupon parses the coupon banner.
func (e *Ebay) Coupon() (domain.Discount, bool) {
	text, ok := firstText(e.doc.Selection, "div.x-coupon")
	if !ok {
		return domain.Discount{}, false
	}
	return discount.Parse(text)
}
