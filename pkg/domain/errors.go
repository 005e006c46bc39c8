package domain

import "errors"

// Registry misuse. These indicate caller bugs and are never retried.
var (
	// ErrNotFound is returned when a logical instrument name is not registered.
	ErrNotFound = errors.New("instrument not found")

	// ErrDuplicateName is returned when registering a name that is already taken.
	ErrDuplicateName = errors.New("instrument name already registered")
)

// Hardware availability. A run that hits one of these aborts.
var (
	// ErrUnavailable is returned when resolving a handle that is Faulted or Disconnected.
	ErrUnavailable = errors.New("instrument unavailable")

	// ErrInstrumentFault is returned by drivers when the hardware reports a fault.
	ErrInstrumentFault = errors.New("instrument fault")
)

// Transient failures. Retried with bounded exponential backoff before surfacing.
var (
	// ErrCommunication is returned when a bus or network exchange fails.
	ErrCommunication = errors.New("communication failure")

	// ErrTimedOut is returned when an operation outlives its deadline or lease.
	ErrTimedOut = errors.New("operation timed out")
)

var (
	// ErrLocked is returned when another client holds the lease on an instrument.
	ErrLocked = errors.New("instrument locked by another client")

	// ErrInvalidValue is returned when a parameter value violates its descriptor.
	ErrInvalidValue = errors.New("parameter value out of bounds")

	// ErrSinkBackpressure is returned by a sink that cannot keep up; it aborts
	// the current run rather than stalling hardware sequencing.
	ErrSinkBackpressure = errors.New("acquisition sink backpressure")
)

// IsTransient reports whether err is worth retrying. Only communication
// failures and timeouts qualify; everything else propagates immediately.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCommunication) || errors.Is(err, ErrTimedOut)
}
