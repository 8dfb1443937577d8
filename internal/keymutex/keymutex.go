package keymutex

import "sync"

// KeyMutex hands out named critical sections. Sections for the same key are
// serialized; sections for different keys run concurrently. Entries are
// refcounted so keys that fall idle do not accumulate.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// WithLock runs fn while holding the lock for key. The lock is held for the
// full duration of fn, including any blocking I/O fn performs. fn's error is
// returned unchanged.
func (k *KeyMutex) WithLock(key string, fn func() error) error {
	e := k.acquire(key)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		k.release(key, e)
	}()
	return fn()
}

func (k *KeyMutex) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyMutex) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
