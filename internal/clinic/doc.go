// Package clinic implements the scheduling domain: users, payment methods,
// doctors, appointment slots, and the booking workflows over them.
//
// # Concurrency protocol
//
// Every write that transitions a slot runs inside two nested guards. First an
// in-process keyed lock serializes work on that slot id, so concurrent
// bookings of the same slot queue instead of racing. Second, the actual
// transition happens inside a store transaction as a conditional update
// (open to booked, or booked back to open); even a writer that slipped past
// the lock, such as a second gateway process sharing the database file,
// cannot complete a transition the slot is not in. Of two concurrent attempts
// on the same open slot, exactly one succeeds and the other observes
// ErrSlotUnavailable.
//
// Reads never take locks and may be stale; a slot shown as open by a search
// can be gone by the time schedule_appointment runs, which surfaces as
// ErrSlotUnavailable rather than a double booking.
//
// Tools in tools.go bind these workflows to the dispatcher under the names
// clients call them by.
package clinic
