// Package extractor turns marketplace product pages into partial product fields.
//
// Every marketplace is a variant of the Extractor interface, selected by
// platform tag through a registry. Missing markup is never an error: each
// method reports whether it found its field.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/normalizer"
)

// ErrUnsupportedPlatform is returned by New when no extractor is registered for a platform.
var ErrUnsupportedPlatform = errors.New("no extractor registered for platform")

// Extractor reads product fields from one parsed page.
type Extractor interface {
	Title() (string, bool)
	Price() (decimal.Decimal, bool)
	Image() (string, bool)
	Seller() (domain.SellerInfo, bool)
	Coupon() (domain.Discount, bool)
}

// Constructor builds an Extractor over a parsed document.
type Constructor func(doc *goquery.Document) Extractor

var (
	registryMu sync.RWMutex
	registry   = map[domain.Platform]Constructor{
		domain.PlatformAmazon: NewAmazon,
		domain.PlatformNewegg: NewNewegg,
		domain.PlatformEbay:   NewEbay,
	}
)

// Register installs or replaces the constructor for platform.
func Register(platform domain.Platform, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[platform] = ctor
}

// Platforms returns the platforms that currently have an extractor, sorted.
func Platforms() []domain.Platform {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]domain.Platform, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// ParsePlatform normalizes a platform tag and checks that an extractor is
// registered for it.
func ParsePlatform(s string) (domain.Platform, error) {
	p := domain.Platform(strings.ToLower(strings.TrimSpace(s)))

	registryMu.RLock()
	_, ok := registry[p]
	registryMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
	return p, nil
}

// New parses page and returns the extractor registered for platform.
func New(platform domain.Platform, page *domain.RawPage) (Extractor, error) {
	registryMu.RLock()
	ctor, ok := registry[platform]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	if page == nil {
		return nil, errors.New("nil page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return ctor(doc), nil
}

// Extract runs every capability of e and collects what was found as
// normalizer input.
func Extract(e Extractor) normalizer.Fields {
	var f normalizer.Fields
	if v, ok := e.Title(); ok {
		f.Title = &v
	}
	if v, ok := e.Image(); ok {
		f.Image = &v
	}
	if v, ok := e.Price(); ok {
		f.Price = &v
	}
	if v, ok := e.Seller(); ok {
		f.Seller = &v
	}
	if v, ok := e.Coupon(); ok {
		f.Coupon = &v
	}
	return f
}
