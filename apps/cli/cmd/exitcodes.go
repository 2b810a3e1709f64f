package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/ws/packages/core/config"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// Exit codes for the ws CLI
const (
	// ExitSuccess indicates the call succeeded
	ExitSuccess = 0

	// ExitCallFailure indicates the service answered but the call failed
	// its status, parsing, shape or application checks
	ExitCallFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the service could not be reached
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the exit code of a failed command. reported is set when
// the failure was already written by an output formatter.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func configError(err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		err = fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return withExitCode(ExitConfigError, err)
}

// callError maps a failed call to its exit code
func callError(err error) error {
	code := ExitCallFailure
	if ws.KindOf(err) == ws.KindTransport && ws.StatusCode(err) == 0 {
		code = ExitNetworkError
	}
	return &exitError{code: code, err: err, reported: true}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		return ExitConfigError
	}
	return ExitUsageError
}
