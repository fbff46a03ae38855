package operator

import "errors"

var (
	// ErrUnavailable is returned by a handler whose collaborator is not configured.
	ErrUnavailable = errors.New("operator: capability unavailable")

	// ErrBadValue is returned when a handler receives a value it cannot use.
	ErrBadValue = errors.New("operator: bad value")
)
