// Package keylock provides lazily created per-key locks. A lock handle, once
// created for a key, lives as long as the Map that owns it.
package keylock

import (
	"context"
	"sync"
)

// Lock is a mutual exclusion lock whose acquisition can be abandoned through a
// context.
type Lock struct {
	ch chan struct{}
}

func newLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock obtains the lock without waiting. It returns true on success.
func (l *Lock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock. Unlocking an unlocked Lock panics, as with sync.Mutex.
func (l *Lock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("keylock: unlock of unlocked lock")
	}
}

// Map hands out one Lock per key.
type Map struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

func NewMap() *Map {
	return &Map{locks: make(map[string]*Lock)}
}

// Get returns the lock for key, creating it on first use. Concurrent callers
// asking for the same new key always receive the same Lock.
func (m *Map) Get(key string) *Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = newLock()
		m.locks[key] = l
	}
	return l
}

// Acquire locks key and returns the function that releases it.
func (m *Map) Acquire(ctx context.Context, key string) (func(), error) {
	l := m.Get(key)
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// Len returns the number of lock handles created so far.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
