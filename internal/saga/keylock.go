package saga

import (
	"sync"

	"github.com/google/uuid"
)

// keyLock serializes work per correlation id inside this process.
// Entries are reference counted and dropped once nobody holds or waits on them.
type keyLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[uuid.UUID]*keyEntry)}
}

// Lock blocks until id is free and returns the matching unlock function
func (k *keyLock) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
