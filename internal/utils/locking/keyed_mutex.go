package locking

import "sync"

// KeyedMutex serializes work per string key while letting disjoint keys
// proceed independently. Lot selection and consumption is a read-then-write
// sequence per (instrument, account) pair and must not interleave.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

// LockAll acquires the mutexes for the given keys. Keys must be sorted by
// the caller so concurrent multi-key acquisitions cannot deadlock.
func (k *KeyedMutex) LockAll(keys []string) {
	for _, key := range keys {
		k.Lock(key)
	}
}

// UnlockAll releases the mutexes for the given keys in reverse order.
func (k *KeyedMutex) UnlockAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.Unlock(keys[i])
	}
}
