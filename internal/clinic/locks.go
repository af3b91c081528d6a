// ABOUTME: In-process keyed lock table serializing booking work per slot.
// ABOUTME: Entries are reference counted and reclaimed on last release.

package clinic

import "sync"

type slotLock struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out one mutex per slot id so concurrent bookings of the
// same slot serialize before touching the store, while bookings of different
// slots proceed in parallel. The table itself stays bounded: an entry exists
// only while someone holds or waits on it.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*slotLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*slotLock)}
}

// acquire locks the slot's mutex and returns the release function.
func (t *lockTable) acquire(slotID int64) func() {
	t.mu.Lock()
	l, ok := t.locks[slotID]
	if !ok {
		l = &slotLock{}
		t.locks[slotID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, slotID)
		}
		t.mu.Unlock()
	}
}

// acquirePair locks two slots in ascending id order so two reschedules moving
// between the same pair of slots cannot deadlock.
func (t *lockTable) acquirePair(a, b int64) func() {
	if a == b {
		return t.acquire(a)
	}
	if a > b {
		a, b = b, a
	}
	releaseA := t.acquire(a)
	releaseB := t.acquire(b)
	return func() {
		releaseB()
		releaseA()
	}
}

// size reports the number of live entries. Test hook.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
