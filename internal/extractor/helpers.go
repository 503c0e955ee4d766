package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	priceCleaner = strings.NewReplacer(
		"USD", "",
		"US", "",
		"$", "",
		"€", "",
		"£", "",
		",", "",
		"\u00a0", "",
		" ", "",
		"\t", "",
		"\n", "",
	)
	numericPrice = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	spaces       = regexp.MustCompile(`\s+`)
)

// parsePrice strips currency markers and thousands separators from text and
// parses the remainder. Anything left that is not a plain decimal number is
// reported as not found.
func parsePrice(text string) (decimal.Decimal, bool) {
	cleaned := priceCleaner.Replace(strings.TrimSpace(text))
	if !numericPrice.MatchString(cleaned) {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// firstText returns the text of the earliest node, in document order, that
// matches selector and has non-blank text.
func firstText(sel *goquery.Selection, selector string) (string, bool) {
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = cleanText(s.Text())
		return out == ""
	})
	return out, out != ""
}

// firstAttr returns the first non-blank value of attr among nodes matching selector.
func firstAttr(sel *goquery.Selection, selector string, attrs ...string) (string, bool) {
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range attrs {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = strings.TrimSpace(v)
				return false
			}
		}
		return true
	})
	return out, out != ""
}

// firstOf tries each selector in turn and returns the first hit.
func firstOf(sel *goquery.Selection, selectors ...string) (string, bool) {
	for _, s := range selectors {
		if v, ok := firstText(sel, s); ok {
			return v, true
		}
	}
	return "", false
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
