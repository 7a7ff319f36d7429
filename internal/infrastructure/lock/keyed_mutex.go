package lock

import (
	"sync"
	"sync/atomic"
)

// KeyedMutex provides mutual exclusion per int64 key (a user id) with FIFO
// hand-off between contenders of the same key. Different keys never block
// each other; the registry mutex is only held while looking up or updating
// an entry, never while the caller runs its critical section.
//
// Entries exist only while a key is held. When the holder releases and no
// one is queued the entry is removed, so the registry does not grow with the
// number of users ever seen.
//
//	Free --Acquire--> Held(t1) --Release(t1)--> Held(t2) ... --Release(tn)--> Free
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	// waiters are signalled in order; closing a channel transfers ownership
	// directly, so the key is never observed free while someone is queued.
	waiters []chan struct{}
}

// Ticket is proof of holding a key. It must be released exactly once.
type Ticket struct {
	km       *KeyedMutex
	key      int64
	released atomic.Bool
}

// NewKeyedMutex creates an empty mutex registry.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[int64]*entry)}
}

// Acquire blocks until the caller owns key. Callers of the same key are
// served in the order they reached Acquire.
func (m *KeyedMutex) Acquire(key int64) *Ticket {
	m.mu.Lock()
	e, held := m.entries[key]
	if !held {
		m.entries[key] = &entry{}
		m.mu.Unlock()
		return &Ticket{km: m, key: key}
	}

	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	m.mu.Unlock()

	<-ready
	return &Ticket{km: m, key: key}
}

// Release hands key to the next waiter, or frees it. Releasing the same
// ticket twice panics.
func (m *KeyedMutex) Release(t *Ticket) {
	if t == nil || t.km != m {
		panic("lock: release of foreign ticket")
	}
	if !t.released.CompareAndSwap(false, true) {
		panic("lock: ticket released twice")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[t.key]
	if !ok {
		panic("lock: release of a key that is not held")
	}
	if len(e.waiters) == 0 {
		delete(m.entries, t.key)
		return
	}

	next := e.waiters[0]
	e.waiters[0] = nil
	e.waiters = e.waiters[1:]
	close(next)
}

// Len reports the number of keys currently held.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Waiting reports how many callers are queued behind the holder of key.
func (m *KeyedMutex) Waiting(key int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return len(e.waiters)
	}
	return 0
}

// Key returns the key this ticket holds.
func (t *Ticket) Key() int64 {
	return t.key
}

// Release is shorthand for the owning KeyedMutex's Release.
func (t *Ticket) Release() {
	if t == nil {
		panic("lock: release of foreign ticket")
	}
	t.km.Release(t)
}
