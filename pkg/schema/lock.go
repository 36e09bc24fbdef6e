package schema

import "sync"

// keyedMutex hands out one mutex per schema key. Entries are never removed;
// the key space is bounded by the number of (client, schema) pairs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[Key]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key Key) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
