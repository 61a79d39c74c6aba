package engage

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waiterCount(l *keyedLock, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	if e == nil {
		return 0
	}
	return len(e.waiters)
}

func TestKeyedLockTryAcquire(t *testing.T) {
	l := newKeyedLock()

	release, ok := l.TryAcquire("s1")
	if !ok {
		t.Fatalf("first TryAcquire failed")
	}
	if _, ok := l.TryAcquire("s1"); ok {
		t.Fatalf("second TryAcquire succeeded while held")
	}
	// Other keys are independent.
	release2, ok := l.TryAcquire("s2")
	if !ok {
		t.Fatalf("TryAcquire on other key failed")
	}
	release2()

	release()
	release3, ok := l.TryAcquire("s1")
	if !ok {
		t.Fatalf("TryAcquire after release failed")
	}
	release3()
}

func TestKeyedLockFIFOOrder(t *testing.T) {
	l := newKeyedLock()

	holder, ok := l.TryAcquire("s1")
	if !ok {
		t.Fatalf("setup acquire failed")
	}

	const n = 5
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i
		go func() {
			release, err := l.Acquire(context.Background(), "s1")
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			if len(order) == n {
				close(done)
			}
			mu.Unlock()
			release()
		}()
		// Ensure each waiter is queued before the next starts, so
		// arrival order is deterministic.
		for waiterCount(l, "s1") != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	holder()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("waiters did not complete")
	}

	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("grant order=%v, want FIFO", order)
		}
	}
}

func TestKeyedLockAcquireCancel(t *testing.T) {
	l := newKeyedLock()

	holder, _ := l.TryAcquire("s1")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, "s1")
		errCh <- err
	}()
	for waiterCount(l, "s1") != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; err != context.Canceled {
		t.Fatalf("err=%v, want context.Canceled", err)
	}

	// The abandoned waiter must not absorb the next grant.
	granted := make(chan struct{})
	go func() {
		release, err := l.Acquire(context.Background(), "s1")
		if err != nil {
			t.Errorf("live waiter: %v", err)
			return
		}
		close(granted)
		release()
	}()
	// The abandoned waiter is still queued until the next handoff, so
	// the live waiter is the second entry.
	for waiterCount(l, "s1") != 2 {
		time.Sleep(time.Millisecond)
	}

	holder()
	select {
	case <-granted:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock never reached the live waiter")
	}
}
