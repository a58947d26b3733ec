package booking

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the booking core. Callers branch with errors.Is;
// every kind is scoped to a single request and never retried here.
var (
	// ErrInvalidInput covers malformed dates, missing required fields and
	// end <= start.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means a referenced employee or customer does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOutsideAvailability means the requested interval is not contained in
	// any recurring window for that weekday.
	ErrOutsideAvailability = errors.New("outside availability")

	// ErrDayClosed is the "no windows at all for that weekday" case. It
	// matches ErrOutsideAvailability under errors.Is so callers that don't
	// care about the distinction handle both the same way.
	ErrDayClosed = fmt.Errorf("day closed: %w", ErrOutsideAvailability)

	// ErrSlotTaken means the interval overlaps an existing non-cancelled
	// appointment.
	ErrSlotTaken = errors.New("slot taken")

	// ErrCustomerSync means customer resolution lost a creation race; the
	// caller may retry the whole booking.
	ErrCustomerSync = errors.New("customer sync conflict")
)
