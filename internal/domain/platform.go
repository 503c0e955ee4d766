// Package domain provides the platform-independent models shared by the
// extraction pipeline, the scheduler and the price history store.
package domain

// Platform identifies the marketplace a product page belongs to.
type Platform string

// Built-in marketplaces. Others can be added through the extractor registry.
const (
	PlatformAmazon Platform = "amazon"
	PlatformNewegg Platform = "newegg"
	PlatformEbay   Platform = "ebay"
)

func (p Platform) String() string {
	return string(p)
}
