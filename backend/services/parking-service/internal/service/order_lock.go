package service

import (
	"context"
	"sync"
)

// OrderLocker serializes webhook handling per order reference.
type OrderLocker interface {
	Lock(ctx context.Context, orderRef int64) (unlock func(), err error)
}

// KeyedMutex is an in-process OrderLocker. Entries are reference counted and removed
// once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyedEntry)}
}

// Lock blocks until the key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, orderRef int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[orderRef]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[orderRef] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(orderRef, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(orderRef, e)
		})
	}, nil
}

func (k *KeyedMutex) release(orderRef int64, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, orderRef)
	}
}
