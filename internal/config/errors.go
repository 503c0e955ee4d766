package config

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid is wrapped by every validation failure.
var ErrConfigInvalid = errors.New("invalid configuration")

// ValidationError represents an error in configuration validation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrConfigInvalid).
func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}
