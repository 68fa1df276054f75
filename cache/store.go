package cache

import (
	"context"
	"sync"
	"time"
)

// Store is one persistence tier. Get reports a miss as (Entry{}, false, nil);
// expiry is left to the caller, which owns the clock.
type Store interface {
	Tier() Tier
	Get(ctx context.Context, id string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, id string) error
	// Purge removes expired entries, or every entry when expiredOnly is
	// false, and returns how many were removed.
	Purge(ctx context.Context, now time.Time, expiredOnly bool) (int, error)
	Len() int
}

// roomMaker is implemented by quota-bounded stores.
type roomMaker interface {
	MakeRoom(ctx context.Context, need int64) (int, error)
}

// keyLocks hands out one mutex per id so that operations on different ids
// never wait on each other.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(id string) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*keyLock)
	}
	l := k.m[id]
	if l == nil {
		l = &keyLock{}
		k.m[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, id)
		}
		k.mu.Unlock()
	}
}
