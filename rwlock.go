package rwlock

import (
	"context"
	"sync"
	"time"
)

// RWLock is a reader/writer lock with writer priority.
//
// The lock is held by any number of readers or by a single writer.
// Once a writer is blocked, new readers wait behind it so a steady stream
// of readers cannot starve writers. A goroutine whose Holder already has a
// read lock is the exception: it is admitted while the lock is read-held
// even if writers are waiting, since refusing it would deadlock that
// goroutine against the writer waiting for it.
//
// Writers are not ordered among themselves. Write locks are not recursive,
// and a read hold is never upgraded to a write hold.
//
// Properties:
//   - Blocking, non-blocking and deadline-bounded acquisition on both sides.
//   - Every failure is returned as an error; nothing panics on misuse.
//   - Unlock releases whichever hold the lock currently has.
//
// An RWLock is created with New. For a lock that needs no explicit
// construction, see Static.
type RWLock struct {
	_  noCopy
	mu sync.Mutex

	// state is 0 when free, n > 0 when held by n readers and -1 when held
	// by a writer.
	state          int
	blockedWriters int

	readSignal  cond
	writeSignal cond

	maxReaders int
	arena      *Arena
	destroyed  bool
}

// Stat is a snapshot of the lock's internal counters.
type Stat struct {
	// State is 0 when free, the reader count when read-held and -1 when
	// write-held.
	State          int
	BlockedWriters int
	BlockedReaders int
	Destroyed      bool
}

// New constructs an RWLock. Options are described on Attr.
//
// If the lock is allocated from an Arena that is exhausted, New returns
// ErrNoMemory and nothing is allocated.
func New(options ...func(*Attr)) (*RWLock, error) {
	attr := newAttr(options)
	if err := attr.arena.alloc(); err != nil {
		return nil, err
	}
	l := &RWLock{
		maxReaders: attr.maxReaders,
		arena:      attr.arena,
	}
	l.readSignal = cond{mu: &l.mu, clock: attr.clock}
	l.writeSignal = cond{mu: &l.mu, clock: attr.clock}
	return l, nil
}

// Destroy releases the lock. Any later call on l returns ErrInvalid.
//
// The caller must make sure no goroutine holds l. Goroutines still blocked
// on l are woken and fail with ErrInvalid.
func (l *RWLock) Destroy() error {
	if l == nil {
		return ErrInvalid
	}
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return ErrInvalid
	}
	l.destroyed = true
	l.readSignal.broadcast()
	l.writeSignal.broadcast()
	l.mu.Unlock()

	l.arena.free()
	return nil
}

// RLock acquires a read lock, blocking while the lock is write-held or a
// writer is waiting.
func (l *RWLock) RLock(h *Holder) error {
	return l.rdlock(context.Background(), h, false, time.Time{})
}

// TryRLock acquires a read lock without blocking. It returns ErrBusy when
// the caller would have to wait.
func (l *RWLock) TryRLock(h *Holder) error {
	return l.rdlock(context.Background(), h, true, time.Time{})
}

// TimedRLock is like RLock but gives up with ErrTimedOut at deadline.
// A deadline in the past makes it behave like TryRLock, except that the
// failure is ErrTimedOut. A zero deadline is rejected with ErrInvalid.
func (l *RWLock) TimedRLock(h *Holder, deadline time.Time) error {
	if deadline.IsZero() {
		return ErrInvalid
	}
	return l.rdlock(context.Background(), h, false, deadline)
}

// RLockContext is like RLock but gives up when ctx is done, returning
// ctx.Err().
func (l *RWLock) RLockContext(ctx context.Context, h *Holder) error {
	if ctx == nil {
		return ErrInvalid
	}
	return l.rdlock(ctx, h, false, time.Time{})
}

func (l *RWLock) rdlock(ctx context.Context, h *Holder, try bool, deadline time.Time) error {
	if l == nil || h == nil {
		return ErrInvalid
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.destroyed {
			return ErrInvalid
		}
		if l.state >= l.maxReaders {
			if try {
				return errTryTooManyReaders
			}
			return ErrTooManyReaders
		}
		// Recursive read: admitted past waiting writers.
		if h.rdlocks > 0 && l.state > 0 {
			break
		}
		if l.blockedWriters == 0 && l.state >= 0 {
			break
		}
		if try {
			return ErrBusy
		}
		if err := l.readSignal.wait(ctx, deadline); err != nil {
			return err
		}
	}
	l.state++
	h.rdlocks++
	return nil
}

// Lock acquires the write lock, blocking until the lock is free.
func (l *RWLock) Lock() error {
	return l.wrlock(context.Background(), time.Time{})
}

// TryLock acquires the write lock without blocking. It returns ErrBusy
// unless the lock is free.
func (l *RWLock) TryLock() error {
	if l == nil {
		return ErrInvalid
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return ErrInvalid
	}
	if l.state != 0 {
		return ErrBusy
	}
	l.state = -1
	return nil
}

// TimedLock is like Lock but gives up with ErrTimedOut at deadline.
// A zero deadline is rejected with ErrInvalid.
func (l *RWLock) TimedLock(deadline time.Time) error {
	if deadline.IsZero() {
		return ErrInvalid
	}
	return l.wrlock(context.Background(), deadline)
}

// LockContext is like Lock but gives up when ctx is done, returning
// ctx.Err().
func (l *RWLock) LockContext(ctx context.Context) error {
	if ctx == nil {
		return ErrInvalid
	}
	return l.wrlock(ctx, time.Time{})
}

func (l *RWLock) wrlock(ctx context.Context, deadline time.Time) error {
	if l == nil {
		return ErrInvalid
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.destroyed {
			return ErrInvalid
		}
		if l.state == 0 {
			break
		}
		l.blockedWriters++
		err := l.writeSignal.wait(ctx, deadline)
		l.blockedWriters--
		if err != nil {
			// Last queued writer gone: release readers parked behind it.
			if l.blockedWriters == 0 && l.state >= 0 {
				l.readSignal.broadcast()
			}
			return err
		}
	}
	l.state = -1
	return nil
}

// Unlock releases one hold on l: a read hold when l is read-held, the write
// hold when l is write-held. h must be the Holder used to acquire a read
// hold; it may be nil when releasing the write hold.
//
// Unlocking a free lock returns ErrInvalid and changes nothing.
func (l *RWLock) Unlock(h *Holder) error {
	if l == nil {
		return ErrInvalid
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return ErrInvalid
	}

	switch {
	case l.state > 0:
		if h == nil {
			return ErrInvalid
		}
		h.rdlocks--
		l.state--
		if l.state == 0 && l.blockedWriters > 0 {
			l.writeSignal.signal()
		}
	case l.state < 0:
		l.state = 0
		if l.blockedWriters > 0 {
			l.writeSignal.signal()
		} else {
			l.readSignal.broadcast()
		}
	default:
		return ErrInvalid
	}
	return nil
}

// Stat returns a snapshot of l's counters. A nil lock reports a zero Stat.
func (l *RWLock) Stat() Stat {
	if l == nil {
		return Stat{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stat{
		State:          l.state,
		BlockedWriters: l.blockedWriters,
		BlockedReaders: l.readSignal.waiters(),
		Destroyed:      l.destroyed,
	}
}
