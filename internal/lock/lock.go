// Package lock serializes workroom transitions that target the same issue.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBusy = errors.New("lock: busy")

// Locker hands out exclusive leases on string keys.
type Locker interface {
	// Acquire blocks until the lease on key is held or ctx is done. A live
	// holder keeps the lease until release; ttl only bounds how long it
	// outlives a holder that died without releasing.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker. ttl is ignored; leases end on release.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: map[string]chan struct{}{}}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrBusy
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
