// Package common provides shared utilities for command implementations.
package common

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/config"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
)

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Logger logger.Logger
	Config *config.Config
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// NewCommandDeps loads the configuration named by the --config flag and
// builds the logger. --debug forces debug level output.
func NewCommandDeps() (CommandDeps, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.GetConfigPath(config.DefaultConfigPath)
	} else if _, err := os.Stat(path); err != nil {
		return CommandDeps{}, fmt.Errorf("config file: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err = cfg.Validate(); err != nil {
		return CommandDeps{}, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	deps := CommandDeps{
		Logger: log,
		Config: cfg,
	}

	if validateErr := deps.Validate(); validateErr != nil {
		return CommandDeps{}, fmt.Errorf("validate deps: %w", validateErr)
	}

	return deps, nil
}
