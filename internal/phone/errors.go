package phone

import (
	"errors"
	"fmt"
)

// Domain errors for the phone package.
var (
	// ErrConnectivity is matched by every *ConnectivityError.
	ErrConnectivity = errors.New("phone: service unreachable")

	// ErrMalformedEvent is returned by ParseEvent for payloads that are dropped.
	ErrMalformedEvent = errors.New("phone: malformed event")
)

// ConnectivityError reports a failed call to the phone service. It is
// recoverable: the stream retries and outbound calls can be repeated.
type ConnectivityError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrConnectivity.Error(), e.Op, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

// APIError reports a non-2xx response from the phone service REST API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("phone: %s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("phone: %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}
