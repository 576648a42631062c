// Package keylock provides named advisory locks so unrelated keys never contend.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock is a set of mutexes keyed by a domain value (device identifier,
// claim address, transaction identifier). Entries are dropped once the last
// holder releases them.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{
		locks: make(map[string]*entry),
	}
}

// Lock acquires the lock for key, blocking until it is available.
func (kl *KeyLock) Lock(key string) {
	kl.mu.Lock()
	e := kl.locks[key]
	if e == nil {
		e = &entry{}
		kl.locks[key] = e
	}
	e.refs++
	kl.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for key.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	e := kl.locks[key]
	if e == nil {
		kl.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(kl.locks, key)
	}
	kl.mu.Unlock()

	e.mu.Unlock()
}
