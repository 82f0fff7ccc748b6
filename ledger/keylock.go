package ledger

import "sync"

// KeyLocks serializes mutations per (company, period). Two requests for the
// same key take turns; different keys proceed in parallel. Process-local:
// a multi-process deployment would need a versioned write against the
// mirror instead.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[PeriodKey]*sync.Mutex
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[PeriodKey]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *KeyLocks) Lock(key PeriodKey) func() {
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
