package hub

import (
	"errors"
	"fmt"
)

// Domain errors for the hub package.
var (
	// ErrConnectivity is matched by every *ConnectivityError.
	ErrConnectivity = errors.New("hub: home assistant unreachable")

	// ErrNotConfigured is returned by Connect when no token is set.
	ErrNotConfigured = errors.New("hub: home assistant token not configured")

	// ErrNotFound is returned by GetState for unknown entities.
	ErrNotFound = errors.New("hub: entity not found")
)

// ConnectivityError reports a failed call to Home Assistant, either a
// transport failure or a non-2xx response.
type ConnectivityError struct {
	Op         string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d", ErrConnectivity.Error(), e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConnectivity.Error(), e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}
