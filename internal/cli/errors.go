package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
)

// ExitError attaches a process exit code to a command error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// mapExitCode prefers an explicit ExitError, then the typed errors commands
// return unwrapped, then cobra's usage messages.
func mapExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}

	var coded *ExitError
	if errors.As(err, &coded) {
		return coded.Code
	}

	var configErr *config.ValidationError
	var requestErr *install.ValidationError
	switch {
	case errors.As(err, &configErr):
		return exitcode.InvalidConfig
	case errors.As(err, &requestErr):
		return exitcode.InvalidUsage
	case errors.Is(err, context.Canceled):
		return exitcode.Interrupted
	}

	message := err.Error()
	for _, usage := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "if any flags in the group"} {
		if strings.Contains(message, usage) {
			return exitcode.InvalidUsage
		}
	}
	return exitcode.RuntimeFailure
}
