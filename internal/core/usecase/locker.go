package usecase

import "sync"

// keyedMutex serializes operations per document id so an in-flight
// processing pass and a validation write can never interleave on the same
// record. Entries are reference counted and removed when unused.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks bundles the per-id mutex shared by the processing and validation
// use cases. Both must be built from the same instance.
type Locks struct {
	byID *keyedMutex
}

func NewLocks() *Locks {
	return &Locks{byID: newKeyedMutex()}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock blocks until the key is exclusively held and returns the release
// function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
