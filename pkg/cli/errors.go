package cli

import (
	"errors"
	"fmt"

	"mercator-hq/archivist/pkg/archive"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitError              = 1
	ExitUsage              = 2
	ExitArchiveInProgress  = 3
	ExitVerificationFailed = 4
	ExitPartialDeletion    = 5
	ExitStorageUnavailable = 6
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	var cfgErr *ConfigError

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr), errors.Is(err, archive.ErrInvalidQuery):
		return ExitUsage
	case errors.Is(err, archive.ErrArchiveInProgress):
		return ExitArchiveInProgress
	case errors.Is(err, archive.ErrVerificationFailed):
		return ExitVerificationFailed
	case errors.Is(err, archive.ErrPartialDeletion):
		return ExitPartialDeletion
	case errors.Is(err, archive.ErrStorageUnavailable):
		return ExitStorageUnavailable
	default:
		return ExitError
	}
}
