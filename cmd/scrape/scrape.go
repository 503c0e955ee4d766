// Package scrape implements the one-off scrape command.
package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/extractor"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/fetcher"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/identity"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/normalizer"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scrape"
)

// ErrCouldNotValidate is returned when a page cannot be fetched or does not
// yield a valid product.
var ErrCouldNotValidate = errors.New("could not validate product")

// Command returns the scrape command.
func Command() *cobra.Command {
	var (
		platform string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "scrape --platform PLATFORM URL",
		Short: "Scrape one product page and print the result as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := extractor.ParsePlatform(platform)
			if err != nil {
				return err
			}

			if file != "" {
				return scrapeFile(cmd.OutOrStdout(), p, file)
			}
			if len(args) != 1 {
				return errors.New("a product URL or --file is required")
			}

			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()

			f := fetcher.New(fetcher.Config{
				Timeout:      deps.Config.Fetcher.Timeout,
				MaxBodyBytes: deps.Config.Fetcher.MaxBodyBytes,
			})
			defer f.Close()

			opts, err := identity.Snapshot(cmd.Context(),
				identity.NewStatic(deps.Config.Fetcher.UserAgents, deps.Config.Fetcher.Proxies))
			if err != nil {
				return err
			}

			product, err := scrape.New(f).Scrape(cmd.Context(), p, args[0], opts)
			if err != nil {
				deps.Logger.Warn("Scrape failed", logger.String("url", args[0]), logger.Error(err))
				return describe(err)
			}
			return write(cmd.OutOrStdout(), product)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", common.PlatformUsage())
	cmd.Flags().StringVar(&file, "file", "", "extract from a saved HTML file instead of fetching")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func scrapeFile(w io.Writer, platform domain.Platform, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}

	product, err := scrape.Page(platform, &domain.RawPage{URL: path, Body: body})
	if err != nil {
		return describe(err)
	}
	return write(w, product)
}

// describe maps pipeline errors to the user-facing message.
func describe(err error) error {
	var fetchErr *fetcher.FetchFailure
	var validationErr *normalizer.ValidationError

	switch {
	case errors.As(err, &fetchErr):
		return fmt.Errorf("%w: %s", ErrCouldNotValidate, fetchErr.Reason)
	case errors.As(err, &validationErr):
		return fmt.Errorf("%w: %s", ErrCouldNotValidate, validationErr.Error())
	default:
		return err
	}
}

func write(w io.Writer, product *domain.ScrapedProduct) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(product)
}
