// Package lock provides keyed mutual exclusion for state transitions. Local
// serializes within one process; Redis extends the same guarantee across
// instances with the RedLock algorithm.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotAcquired is returned when a lock could not be obtained in the configured tries.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrEmptyKey is returned when an empty lock key is provided.
	ErrEmptyKey = errors.New("lock key cannot be empty")
)

// Locker runs fn while holding the lock identified by key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// KeyedMutex hands out one mutex per key. Entries are never evicted; the key
// space is bounded by the number of live records.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Local is an in-process Locker.
type Local struct {
	km KeyedMutex
}

func NewLocal() *Local { return &Local{} }

var _ Locker = (*Local)(nil)

func (l *Local) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := l.km.Lock(key)
	defer unlock()
	return fn(ctx)
}

// TransactionKey is the lock key guarding one transaction's transitions.
func TransactionKey(id string) string { return "lock:transaction:" + id }
