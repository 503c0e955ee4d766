package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/discount"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

// Newegg extracts product fields from a Newegg item page.
type Newegg struct {
	doc *goquery.Document
}

// NewNewegg returns the Newegg variant.
func NewNewegg(doc *goquery.Document) Extractor {
	return &Newegg{doc: doc}
}

// Title prefers an h1 whose class mentions product-title, then any h1.
func (n *Newegg) Title() (string, bool) {
	var title string
	n.doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if strings.Contains(class, "product-title") {
			title = cleanText(s.Text())
		}
		return title == ""
	})
	if title != "" {
		return title, true
	}
	return firstText(n.doc.Selection, "h1")
}

// Price reads the current price in the buy box.
func (n *Newegg) Price() (decimal.Decimal, bool) {
	text, ok := firstText(n.doc.Selection, "div.price-new-right div.price-current")
	if !ok {
		return decimal.Decimal{}, false
	}
	return parsePrice(text)
}

// Image reads the first image in the side gallery.
func (n *Newegg) Image() (string, bool) {
	return firstAttr(n.doc.Selection, "#side-product-gallery #side-swiper-container img", "src")
}

// Seller reads the ships-from and sold-by rows of the seller box.
func (n *Newegg) Seller() (domain.SellerInfo, bool) {
	block := n.doc.Find("div.product-seller-box").First()
	if block.Length() == 0 {
		return domain.SellerInfo{}, false
	}

	return domain.SellerInfo{
		ShipsFrom: optional(firstText(block, ".product-seller-box-shhips a strong, .product-seller-box-ships a strong")),
		SoldBy:    optional(firstText(block, ".product-seller-sold-by strong")),
	}, true
}

// Coupon parses the promo banner.
func (n *Newegg) Coupon() (domain.Discount, bool) {
	text, ok := firstOf(n.doc.Selection, "div.product-promo", "div.item-promo")
	if !ok {
		return domain.Discount{}, false
	}
	return discount.Parse(text)
}
