package common

import "errors"

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil
	ErrLoggerRequired = errors.New("logger is required")

	// ErrConfigRequired is returned when CommandDeps.Config is nil
	ErrConfigRequired = errors.New("config is required")

	// ErrInvalidTrigger is returned when a command is given conflicting schedule flags.
	ErrInvalidTrigger = errors.New("use only one of --every, --cron or --at")
)
