// Package scrape runs the fetch, extract and normalize stages for one product page.
package scrape

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/extractor"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/fetcher"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/normalizer"
)

// Stage names the pipeline step that failed.
type Stage string

// Pipeline stages.
const (
	StageFetch      Stage = "fetch"
	StageExtract    Stage = "extract"
	StageValidation Stage = "validation"
)

// Error wraps a stage failure. The wrapped error is a *fetcher.FetchFailure
// for StageFetch and a *normalizer.ValidationError for StageValidation.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PageFetcher retrieves raw product pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.Options) (*domain.RawPage, error)
}

// Pipeline turns a product URL into a canonical ScrapedProduct.
type Pipeline struct {
	fetcher PageFetcher
}

// New creates a Pipeline.
func New(f PageFetcher) *Pipeline {
	return &Pipeline{fetcher: f}
}

// Scrape fetches url and extracts it with the platform's extractor.
func (p *Pipeline) Scrape(
	ctx context.Context,
	platform domain.Platform,
	url string,
	opts fetcher.Options,
) (*domain.ScrapedProduct, error) {
	page, err := p.fetcher.Fetch(ctx, url, opts)
	if err != nil {
		return nil, &Error{Stage: StageFetch, Err: err}
	}
	return Page(platform, page)
}

// Page runs the extract and normalize stages over an already fetched page.
func Page(platform domain.Platform, page *domain.RawPage) (*domain.ScrapedProduct, error) {
	ext, err := extractor.New(platform, page)
	if err != nil {
		return nil, &Error{Stage: StageExtract, Err: err}
	}

	product, err := normalizer.Normalize(extractor.Extract(ext))
	if err != nil {
		return nil, &Error{Stage: StageValidation, Err: err}
	}
	return product, nil
}
