package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when a lock could not be acquired before the wait bound or
// the caller's context expired.
var ErrBusy = errors.New("locking: resource busy")

// KeyedMutex is an in-process exclusive lock per key. Entries are reference
// counted and dropped once no holder or waiter remains.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
	wait  time.Duration
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex returns a keyed mutex. A positive wait bounds how long Lock
// blocks in addition to the caller's context.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyEntry{}, wait: wait}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if k.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}

	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, errors.Join(ErrBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys are currently held or awaited.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
