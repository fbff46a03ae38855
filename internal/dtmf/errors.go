package dtmf

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the dtmf package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, dtmf.ErrConfiguration) {
//	    // abort startup
//	}
var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("dtmf: invalid state table")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("dtmf: invalid input")

	// ErrHandlerFailed is matched by every *HandlerExecutionError.
	ErrHandlerFailed = errors.New("dtmf: handler failed")

	// ErrNotLoaded is returned when the engine is started before a table is loaded.
	ErrNotLoaded = errors.New("dtmf: no state table loaded")

	// ErrNotStarted is returned when events arrive before Start.
	ErrNotStarted = errors.New("dtmf: engine not started")

	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("dtmf: engine closed")

	// ErrInvalidSymbol is returned for a value outside 0-9, * and #.
	ErrInvalidSymbol = errors.New("dtmf: invalid symbol")

	// ErrUnknownState is returned by TransitionTo for an undeclared target.
	ErrUnknownState = errors.New("dtmf: unknown state")
)

// ConfigurationError reports every problem found while loading a state table.
// It is fatal: callers must abort startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationError reports input that a transform or caller rejected.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %q: %v", ErrValidation.Error(), e.Value, e.Err)
	}
	return fmt.Sprintf("%s %s=%q: %v", ErrValidation.Error(), e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HandlerExecutionError wraps a failure or panic inside a bound handler.
type HandlerExecutionError struct {
	State   string
	Handler string
	Err     error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("%s: %s in state %s: %v", ErrHandlerFailed.Error(), e.Handler, e.State, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

func (e *HandlerExecutionError) Is(target error) bool {
	return target == ErrHandlerFailed
}
