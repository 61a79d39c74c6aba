package engage

import (
	"context"
	"sync"
)

// keyedLock provides per-key mutual exclusion with FIFO handoff:
// waiters for the same key are granted the lock in arrival order.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	held    bool
	waiters []*lockWaiter
}

type lockWaiter struct {
	granted   chan struct{}
	abandoned bool
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*lockEntry)}
}

// TryAcquire takes the key's lock if it is free. The returned release
// must be called exactly once when ok is true.
func (l *keyedLock) TryAcquire(key string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		e = &lockEntry{}
		l.entries[key] = e
	}
	if e.held {
		return nil, false
	}
	e.held = true
	return func() { l.release(key) }, true
}

// Acquire blocks until the key's lock is granted or ctx is done.
// Grants are strictly FIFO per key.
func (l *keyedLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	e := l.entries[key]
	if e == nil {
		e = &lockEntry{}
		l.entries[key] = e
	}
	if !e.held {
		e.held = true
		l.mu.Unlock()
		return func() { l.release(key) }, nil
	}

	w := &lockWaiter{granted: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	l.mu.Unlock()

	select {
	case <-w.granted:
		return func() { l.release(key) }, nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.granted:
			// The grant raced the cancellation; we own the lock and
			// must hand it onward.
			l.releaseLocked(key)
			l.mu.Unlock()
		default:
			w.abandoned = true
			l.mu.Unlock()
		}
		return nil, ctx.Err()
	}
}

func (l *keyedLock) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(key)
}

// releaseLocked hands the lock to the oldest live waiter, or frees it.
// Caller holds l.mu.
func (l *keyedLock) releaseLocked(key string) {
	e := l.entries[key]
	if e == nil {
		return
	}
	for len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		if w.abandoned {
			continue
		}
		close(w.granted)
		return
	}
	e.held = false
	delete(l.entries, key)
}
