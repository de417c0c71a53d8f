package api

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed local input. It is raised
// before any network I/O and never reaches the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// TransportError reports a failure to complete a request: network error,
// timeout, or a non-2xx status without a structured error payload.
// Status is 0 when the request never completed.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessRejection is a structured error returned by the backend, e.g. a
// booking conflict. Message carries the server-provided text.
type BusinessRejection struct {
	Op      string
	Status  int
	Message string
}

func (e *BusinessRejection) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is (or wraps) a BusinessRejection.
func IsRejection(err error) bool {
	var br *BusinessRejection
	return errors.As(err, &br)
}
