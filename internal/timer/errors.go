package timer

import (
	"errors"
	"fmt"
)

// Domain errors for the timer package.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("timer: invalid request")

	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("timer: not found")

	// ErrClosed is returned when creating a timer on a closed manager.
	ErrClosed = errors.New("timer: manager closed")
)

// ValidationError reports an out-of-range duration.
type ValidationError struct {
	Field  string
	Value  int64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s=%d: %s", ErrValidation.Error(), e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an unknown timer id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound.Error(), e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
