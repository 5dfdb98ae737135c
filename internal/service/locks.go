package service

import (
	"context"
	"sync"
)

// LockArena serializes processing attempts per dedup key. Entries are
// reference-counted and removed when the last holder releases, so the map
// never grows with the universe of keys seen.
type LockArena struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLockArena() *LockArena {
	return &LockArena{
		entries: make(map[string]*lockEntry),
	}
}

// Acquire blocks until the key's lock is held or ctx is done. On success
// the returned release func must be called exactly once.
func (a *LockArena) Acquire(ctx context.Context, key string) (func(), error) {
	a.mu.Lock()
	entry, ok := a.entries[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		a.entries[key] = entry
	}
	entry.refs++
	a.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			a.unref(key, entry)
		}, nil
	case <-ctx.Done():
		a.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (a *LockArena) unref(key string, entry *lockEntry) {
	a.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(a.entries, key)
	}
	a.mu.Unlock()
}

// Len reports the number of live lock entries.
func (a *LockArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
