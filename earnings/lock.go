package earnings

import (
	"context"
	"sync"
)

// Locker serializes writers of a single booking. Different bookings never
// contend.
type Locker interface {
	// Lock blocks until the booking is held or ctx is done. The returned
	// func releases the lock and is safe to call once.
	Lock(ctx context.Context, id BookingID) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker: one channel-backed mutex per booking,
// dropped when the last waiter leaves.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[BookingID]*keyedLock
}

type keyedLock struct {
	ch      chan struct{}
	waiters int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[BookingID]*keyedLock)}
}

func (k *KeyedLocker) Lock(ctx context.Context, id BookingID) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.waiters++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, l, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.release(id, l, true) })
	}, nil
}

func (k *KeyedLocker) release(id BookingID, l *keyedLock, held bool) {
	if held {
		<-l.ch
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		delete(k.locks, id)
	}
}

// held reports how many bookings currently have a lock entry.
func (k *KeyedLocker) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
