// Package history implements the command that prints a product's price history.
package history

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

// Command returns the history command.
func Command() *cobra.Command {
	var listProducts bool

	cmd := &cobra.Command{
		Use:   "history [PRODUCT_ID]",
		Short: "Show tracked products or a product's price history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			stores, err := common.OpenStores(cmd.Context(), deps.Config.Database)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			if listProducts || len(args) == 0 {
				products, listErr := stores.History.ListProducts(cmd.Context())
				if listErr != nil {
					return listErr
				}
				RenderProducts(cmd.OutOrStdout(), products)
				return nil
			}

			product, err := stores.History.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records, err := stores.History.Records(cmd.Context(), product.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n%s\n", product.Name, product.Platform, product.URL)
			RenderRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().BoolVar(&listProducts, "products", false, "list tracked products")
	return cmd
}

// RenderProducts writes products as a table.
func RenderProducts(w io.Writer, products []*domain.Product) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Platform", "Name", "URL", "Created"})
	for _, p := range products {
		t.AppendRow(table.Row{p.ID, p.Platform, p.Name, p.URL, p.CreatedAt.Local().Format(time.DateTime)})
	}
	t.Render()
}

// RenderRecords writes tracking records oldest first.
func RenderRecords(w io.Writer, records []domain.TrackingRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Recorded", "Price", "Sold By", "Ships From", "Coupon"})
	for _, r := range records {
		var soldBy, shipsFrom, coupon string
		if r.Seller != nil {
			soldBy = deref(r.Seller.SoldBy)
			shipsFrom = deref(r.Seller.ShipsFrom)
		}
		if r.Discount != nil {
			coupon = fmt.Sprintf("%s (%s)", r.Discount.Value, r.Discount.Kind)
		}
		t.AppendRow(table.Row{
			r.Timestamp.Local().Format(time.DateTime),
			r.Price.StringFixed(2),
			soldBy,
			shipsFrom,
			coupon,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d records", len(records))})
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
