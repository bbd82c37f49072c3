package dispatch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument rejects malformed requests or configuration.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownObject is returned when a referenced vehicle, order or point does not exist.
	ErrUnknownObject = errors.New("unknown object")
	// ErrNotAssignable is returned when an order cannot be assigned on request.
	ErrNotAssignable = errors.New("order not assignable")
	// ErrServiceFailure wraps faults reported by the external kernel services.
	ErrServiceFailure = errors.New("service failure")
	// ErrNotRunning is returned when operations are submitted to a stopped dispatcher.
	ErrNotRunning = errors.New("dispatcher not running")
)

// serviceError classifies an error returned by an external service. Errors
// already carrying one of the package sentinels keep it; anything else is
// reported as a service failure.
func serviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnknownObject, ErrInvalidArgument, ErrNotAssignable, ErrServiceFailure} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrServiceFailure, op, err)
}

// reportable reports whether err is a fault of the system rather than a
// rejected request.
func reportable(err error) bool {
	for _, caller := range []error{ErrUnknownObject, ErrInvalidArgument, ErrNotAssignable, ErrNotRunning, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, caller) {
			return false
		}
	}
	return true
}
