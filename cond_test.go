package rwlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestCond(clock clockwork.Clock) *cond {
	return &cond{mu: new(sync.Mutex), clock: clock}
}

func TestCond_SignalWakesOne(t *testing.T) {
	c := newTestCond(clockwork.NewRealClock())
	const n = 3
	done := make(chan error, n)
	for range n {
		go func() {
			c.mu.Lock()
			err := c.wait(context.Background(), time.Time{})
			c.mu.Unlock()
			done <- err
		}()
	}
	for {
		c.mu.Lock()
		w := c.waiters()
		c.mu.Unlock()
		if w == n {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.mu.Lock()
	c.signal()
	c.mu.Unlock()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("signal did not wake a waiter")
	}
	select {
	case <-done:
		t.Fatal("signal woke more than one waiter")
	case <-time.After(20 * time.Millisecond):
	}

	c.mu.Lock()
	if w := c.waiters(); w != n-1 {
		t.Fatalf("waiters = %d, want %d", w, n-1)
	}
	c.broadcast()
	c.mu.Unlock()
	for range n - 1 {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("wait = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("broadcast did not wake every waiter")
		}
	}
}

func TestCond_ExpiredDeadlineKeepsMutex(t *testing.T) {
	c := newTestCond(clockwork.NewRealClock())
	c.mu.Lock()
	if err := c.wait(context.Background(), time.Now().Add(-time.Second)); err != ErrTimedOut {
		t.Fatalf("wait = %v, want ErrTimedOut", err)
	}
	if c.mu.TryLock() {
		t.Fatal("mutex was released")
	}
	if c.waiters() != 0 {
		t.Fatalf("waiters = %d", c.waiters())
	}
	c.mu.Unlock()
}

func TestCond_TimeoutLeavesList(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTestCond(clock)
	done := make(chan error, 2)
	for range 2 {
		go func() {
			c.mu.Lock()
			err := c.wait(context.Background(), clock.Now().Add(time.Second))
			c.mu.Unlock()
			done <- err
		}()
	}
	clock.BlockUntil(2)
	clock.Advance(time.Second)
	for range 2 {
		if err := <-done; err != ErrTimedOut {
			t.Fatalf("wait = %v, want ErrTimedOut", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head != nil || c.tail != nil || c.waiters() != 0 {
		t.Fatal("expired waiters left in the list")
	}
}

func TestCond_SignalBeatsTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTestCond(clock)
	done := make(chan error, 1)
	go func() {
		c.mu.Lock()
		err := c.wait(context.Background(), clock.Now().Add(time.Second))
		c.mu.Unlock()
		done <- err
	}()
	clock.BlockUntil(1)

	// Wake and expire while the waiter cannot retake the mutex.
	c.mu.Lock()
	for c.waiters() == 0 {
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
		c.mu.Lock()
	}
	c.signal()
	clock.Advance(time.Second)
	c.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("wait = %v, want wakeup", err)
	}
}

func TestCond_RemoveMiddle(t *testing.T) {
	c := newTestCond(clockwork.NewRealClock())
	a, b, d := &condWaiter{}, &condWaiter{}, &condWaiter{}
	c.push(a)
	c.push(b)
	c.push(d)
	c.remove(b)
	if c.head != a || a.next != d || d.prev != a || c.tail != d || c.waiters() != 2 {
		t.Fatal("list corrupted after removing the middle waiter")
	}
	c.remove(a)
	c.remove(d)
	if c.head != nil || c.tail != nil || c.waiters() != 0 {
		t.Fatal("list not empty")
	}
}
