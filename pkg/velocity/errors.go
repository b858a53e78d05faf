package velocity

import (
	"errors"
	"fmt"
)

// Sentinel errors for velocity sources.
var (
	// ErrServiceUnavailable is returned when the remote service cannot be
	// reached or did not answer in time.
	ErrServiceUnavailable = errors.New("velocity: service unavailable")

	// ErrBadResponse is returned when the service answered with something
	// that is not a usable command.
	ErrBadResponse = errors.New("velocity: bad response")
)

// StatusError is a non-2xx answer from the velocity service.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("velocity: service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("velocity: service returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap classifies server errors as unavailability and anything else as a
// bad response.
func (e *StatusError) Unwrap() error {
	if e.IsServerError() {
		return ErrServiceUnavailable
	}
	return ErrBadResponse
}

// IsServerError returns true for HTTP 5xx.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
