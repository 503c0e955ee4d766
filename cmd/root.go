// Package cmd implements the command-line interface for pricetracker.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdhistory "github.com/jonesrussell/north-cloud/pricetracker/cmd/history"
	cmdjobs "github.com/jonesrussell/north-cloud/pricetracker/cmd/jobs"
	cmdscheduler "github.com/jonesrussell/north-cloud/pricetracker/cmd/scheduler"
	cmdscrape "github.com/jonesrussell/north-cloud/pricetracker/cmd/scrape"
	cmdtrack "github.com/jonesrussell/north-cloud/pricetracker/cmd/track"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands
	Debug bool

	// rootCmd represents the root command for the pricetracker CLI.
	rootCmd = &cobra.Command{
		Use:   "pricetracker",
		Short: "Track marketplace product prices",
		Long: `pricetracker scrapes Amazon, Newegg and eBay product pages on a schedule
and keeps an append-only price history for every tracked product.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command
func Execute() error {
	// Load .env early so PRICETRACKER_* variables are visible to viper
	_ = godotenv.Load()

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or $CONFIG_PATH)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pricetracker version %s\n", Version)
		},
	})

	rootCmd.AddCommand(cmdscheduler.Command())
	rootCmd.AddCommand(cmdscrape.Command())
	rootCmd.AddCommand(cmdtrack.Command())
	rootCmd.AddCommand(cmdjobs.Command())
	rootCmd.AddCommand(cmdhistory.Command())
}

// initConfig binds the global flags and PRICETRACKER_* environment variables.
func initConfig() error {
	viper.SetEnvPrefix("pricetracker")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("failed to bind config flag: %w", err)
	}
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}
