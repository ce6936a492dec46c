// Package lock provides named mutual exclusion for read-modify-write sequences.
package lock

import (
	"context"
	"sync"
)

// Locker acquires a named lock. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	ll, ok := l.locks[name]
	if !ok {
		ll = &localLock{ch: make(chan struct{}, 1)}
		l.locks[name] = ll
	}
	ll.refs++
	l.mu.Unlock()

	select {
	case ll.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(name, ll)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ll.ch
			l.release(name, ll)
		})
	}, nil
}

func (l *Local) release(name string, ll *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, name)
	}
}
