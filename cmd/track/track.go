// Package track implements the command that starts tracking a product.
package track

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/extractor"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/history"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/tracking"
)

// Command returns the track command.
func Command() *cobra.Command {
	var (
		platform string
		name     string
		image    string
		runNow   bool
		flags    common.TriggerFlags
	)

	cmd := &cobra.Command{
		Use:   "track --platform PLATFORM --name NAME URL",
		Short: "Add a product and schedule its price checks",
		Long: `Store a product in the price history and schedule its tracking job.
The schedule defaults to tracking.default_interval; use --every, --cron or --at
to override it. The scheduler command runs the job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := extractor.ParsePlatform(platform)
			if err != nil {
				return err
			}

			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			trigger, err := flags.Trigger(deps.Config.Tracking.DefaultInterval)
			if err != nil {
				return err
			}

			rt, err := common.NewRuntime(cmd.Context(), deps, common.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			product := &domain.Product{Platform: p, URL: args[0], Name: name}
			if image != "" {
				product.ImageURL = &image
			}
			jobID, err := trackProduct(cmd.Context(), rt.Stores.History, rt.Scheduler, product, trigger)
			if err != nil {
				return err
			}
			deps.Logger.Info("Product tracked",
				logger.String("product_id", product.ID),
				logger.String("job_id", jobID),
				logger.String("trigger", trigger.Kind()),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "product %s\njob %s\n", product.ID, jobID)

			if runNow {
				record, runErr := rt.Tracker.Run(cmd.Context(), product.ID)
				if runErr != nil {
					return runErr
				}
				fmt.Fprintf(out, "price %s at %s\n", record.Price.String(), record.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", common.PlatformUsage())
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().StringVar(&image, "image", "", "product image URL")
	cmd.Flags().BoolVar(&runNow, "now", false, "record the current price immediately")
	cmd.Flags().DurationVar(&flags.Every, "every", 0, "check interval, e.g. 6h")
	cmd.Flags().StringVar(&flags.Cron, "cron", "", "cron schedule, e.g. \"0 */6 * * *\"")
	cmd.Flags().StringVar(&flags.Timezone, "timezone", "", "IANA timezone for --cron (default UTC)")
	cmd.Flags().StringVar(&flags.At, "at", "", "single check at an RFC3339 time")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// trackProduct stores product and schedules its tracking job. A product whose
// job could not be scheduled is removed again.
func trackProduct(
	ctx context.Context,
	products history.Store,
	jobs tracking.JobCreator,
	product *domain.Product,
	trigger scheduler.Trigger,
) (string, error) {
	if err := products.CreateProduct(ctx, product); err != nil {
		return "", err
	}

	jobID, err := tracking.Track(ctx, jobs, product.ID, trigger)
	if err != nil {
		if delErr := products.DeleteProduct(context.WithoutCancel(ctx), product.ID); delErr != nil {
			return "", errors.Join(err, fmt.Errorf("remove untracked product %s: %w", product.ID, delErr))
		}
		return "", err
	}
	return jobID, nil
}
