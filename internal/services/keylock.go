package services

import (
	"context"
	"sync"
)

// keyLockEntry is a one-slot semaphore owned by a single key
type keyLockEntry struct {
	sem  chan struct{}
	refs int
}

// KeyLock serializes work per key. Every key gets its own lock, created on first use
// and dropped once no holder or waiter references it, so unrelated keys never wait
// on each other.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

// NewKeyLock creates an empty key lock
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyLockEntry)}
}

// Lock waits for the key until ctx is done. On success the returned function
// releases it and must be called exactly once.
func (k *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyLockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.release(key, e)
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *KeyLock) release(key string, e *keyLockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// size reports how many keys currently have a holder or waiter
func (k *KeyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
