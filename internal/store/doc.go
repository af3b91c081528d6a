// Package store provides persistent storage for the clinic using SQLite.
//
// # Architecture
//
// The Store interface separates the read side (searches, lookups; stale reads
// are acceptable) from the write side, which runs exclusively through
// Transact. Transact hands the caller a Tx view over a single SQLite
// transaction; the booking engine composes slot and appointment transitions
// through it and an error rolls the whole transaction back.
//
// # Integrity
//
// Slot status transitions are conditional updates
// (UPDATE ... WHERE status = ?), so a transition observed by one committed
// transaction can never be repeated by another. A partial unique index keeps
// at most one scheduled appointment per slot as a backstop beneath the
// engine's own serialization.
//
// # Seeding
//
// A fresh database is seeded with demo doctors, their weekly opening days,
// and thirty days of generated open slots. Seeding is idempotent; Reset drops
// the schema and seeds again.
package store
