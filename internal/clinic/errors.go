// ABOUTME: Typed domain errors for the booking engine.
// ABOUTME: Each sentinel maps to one JSON-RPC domain error code at the dispatch boundary.

package clinic

import "errors"

var (
	// ErrSlotUnavailable means the slot exists but is not open for booking.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal means the appointment is cancelled or completed and
	// cannot transition again.
	ErrAlreadyTerminal = errors.New("appointment already in terminal state")

	// ErrInvalidPaymentMethod means the payment method does not exist or does
	// not belong to the given user.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInPast means the slot's start time has already passed.
	ErrInPast = errors.New("slot is in the past")

	// ErrValidation means the request arguments failed validation.
	ErrValidation = errors.New("validation failed")
)
