package rwlock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// cond is a condition variable bound to the mutex of an RWLock.
//
// Unlike sync.Cond, a wait can end at a deadline or when a context is done.
// Waiters are kept in a doubly linked list so an expired waiter can leave
// from the middle. Wake order is not part of the contract.
//
// Every method must be called with mu held.
type cond struct {
	mu    *sync.Mutex
	clock clockwork.Clock
	head  *condWaiter
	tail  *condWaiter
	n     int
}

type condWaiter struct {
	prev  *condWaiter
	next  *condWaiter
	ch    chan struct{}
	woken bool
}

func (c *cond) push(w *condWaiter) {
	w.prev = c.tail
	if c.tail == nil {
		c.head = w
	} else {
		c.tail.next = w
	}
	c.tail = w
	c.n++
}

func (c *cond) remove(w *condWaiter) {
	if w.prev == nil {
		c.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		c.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	c.n--
}

// wait releases mu, parks until signal or broadcast wakes the caller, and
// reacquires mu before returning.
//
// A zero deadline means no deadline. A deadline that has already passed
// returns ErrTimedOut without releasing mu. When ctx is done first, ctx.Err()
// is returned. A wakeup that races with expiry or cancellation is reported
// as a wakeup, so a signal is never swallowed by a waiter that gives up.
func (c *cond) wait(ctx context.Context, deadline time.Time) error {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		d := deadline.Sub(c.clock.Now())
		if d <= 0 {
			return ErrTimedOut
		}
		t := c.clock.NewTimer(d)
		defer t.Stop()
		expired = t.Chan()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := &condWaiter{ch: make(chan struct{}, 1)}
	c.push(w)
	c.mu.Unlock()

	var err error
	select {
	case <-w.ch:
	case <-expired:
		err = ErrTimedOut
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.mu.Lock()
	if w.woken {
		return nil
	}
	c.remove(w)
	return err
}

// signal wakes one waiter, if any.
func (c *cond) signal() {
	if w := c.head; w != nil {
		c.wake(w)
	}
}

// broadcast wakes every waiter.
func (c *cond) broadcast() {
	for c.head != nil {
		c.wake(c.head)
	}
}

func (c *cond) wake(w *condWaiter) {
	c.remove(w)
	w.woken = true
	w.ch <- struct{}{}
}

// waiters returns the number of parked waiters.
func (c *cond) waiters() int {
	return c.n
}
