package rwlock

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Static is an RWLock that needs no explicit construction.
//
// The zero value is an uninitialized lock; the first call constructs it.
// Concurrent first callers share a single construction. If construction
// fails (for example with ErrNoMemory from an exhausted Arena) the error is
// returned and the Static stays uninitialized, so a later call tries again.
//
// Usage:
//
//	var mu rwlock.Static
//
//	func read(h *rwlock.Holder) error {
//		if err := mu.RLock(h); err != nil {
//			return err
//		}
//		defer mu.Unlock(h)
//		...
//	}
type Static struct {
	_       noCopy
	p       atomic.Pointer[RWLock]
	init    singleflight.Group
	options []func(*Attr)
}

// NewStatic returns an uninitialized Static whose lock will be constructed
// with options on first use.
func NewStatic(options ...func(*Attr)) *Static {
	return &Static{options: options}
}

// Get returns the underlying lock, constructing it if needed.
func (s *Static) Get() (*RWLock, error) {
	if s == nil {
		return nil, ErrInvalid
	}
	if l := s.p.Load(); l != nil {
		return l, nil
	}
	v, err, _ := s.init.Do("", func() (any, error) {
		if l := s.p.Load(); l != nil {
			return l, nil
		}
		l, err := New(s.options...)
		if err != nil {
			return nil, err
		}
		s.p.Store(l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RWLock), nil
}

// Initialized reports whether the lock has been constructed.
func (s *Static) Initialized() bool {
	return s != nil && s.p.Load() != nil
}

// Destroy destroys the underlying lock and returns s to the uninitialized
// state. Destroying an uninitialized Static does nothing.
func (s *Static) Destroy() error {
	if s == nil {
		return ErrInvalid
	}
	l := s.p.Swap(nil)
	if l == nil {
		return nil
	}
	return l.Destroy()
}

// RLock is RWLock.RLock on the lazily constructed lock.
func (s *Static) RLock(h *Holder) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.RLock(h)
}

// TryRLock is RWLock.TryRLock on the lazily constructed lock.
func (s *Static) TryRLock(h *Holder) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.TryRLock(h)
}

// TimedRLock is RWLock.TimedRLock on the lazily constructed lock.
func (s *Static) TimedRLock(h *Holder, deadline time.Time) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.TimedRLock(h, deadline)
}

// RLockContext is RWLock.RLockContext on the lazily constructed lock.
func (s *Static) RLockContext(ctx context.Context, h *Holder) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.RLockContext(ctx, h)
}

// Lock is RWLock.Lock on the lazily constructed lock.
func (s *Static) Lock() error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.Lock()
}

// TryLock is RWLock.TryLock on the lazily constructed lock.
func (s *Static) TryLock() error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.TryLock()
}

// TimedLock is RWLock.TimedLock on the lazily constructed lock.
func (s *Static) TimedLock(deadline time.Time) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.TimedLock(deadline)
}

// LockContext is RWLock.LockContext on the lazily constructed lock.
func (s *Static) LockContext(ctx context.Context) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.LockContext(ctx)
}

// Unlock is RWLock.Unlock on the lazily constructed lock.
func (s *Static) Unlock(h *Holder) error {
	l, err := s.Get()
	if err != nil {
		return err
	}
	return l.Unlock(h)
}
