// Package discount turns free-form promotional text into a structured coupon.
package discount

import (
	"regexp"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

var (
	fixedPattern   = regexp.MustCompile(`\$(\d+(?:\.\d{1,2})?)`)
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d{1,2})?)%`)
)

// Parse extracts a discount from text. A fixed dollar amount takes priority
// over a percentage, so "Save $5 or 10%" is classified as fixed.
// It returns false when the text contains neither pattern.
func Parse(text string) (domain.Discount, bool) {
	if m := fixedPattern.FindStringSubmatch(text); m != nil {
		return domain.Discount{Value: "$" + m[1], Kind: domain.DiscountFixed}, true
	}

	if m := percentPattern.FindStringSubmatch(text); m != nil {
		return domain.Discount{Value: m[1] + "%", Kind: domain.DiscountPercentage}, true
	}

	return domain.Discount{}, false
}
