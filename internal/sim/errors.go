package sim

import (
	"errors"
	"fmt"
)

// ConfigError rejects a request before any integration starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FatalError aborts a run. The Result returned alongside it still holds
// every trajectory finalized before the failure.
type FatalError struct {
	Rank int
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal engine error on rank %d: %v", e.Rank, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err rejects the configuration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
