package rwlock

import (
	"github.com/llxisdsh/pb"
)

// Group allows reader/writer locking on arbitrary keys.
//
// Features:
//   - Every key behaves like its own RWLock, including writer priority and
//     recursive reads through the caller's Holder.
//   - Infinite keys & auto-cleanup: a key's lock is constructed on first use
//     and destroyed when its last hold or waiter goes away.
//
// Usage:
//
//	g := rwlock.NewGroup[string]()
//	var h rwlock.Holder
//
//	// Readers
//	g.RLock("config", &h)
//	read(config)
//	g.Unlock("config", &h)
//
//	// Writer
//	g.Lock("config")
//	write(config)
//	g.Unlock("config", nil)
type Group[K comparable] struct {
	_       noCopy
	m       pb.MapOf[K, *groupEntry]
	options []func(*Attr)
}

type groupEntry struct {
	l *RWLock
	// ref counts holds and pending acquisitions. It is only touched inside
	// ProcessEntry, which serializes access per key.
	ref int32
}

// NewGroup returns a Group whose per-key locks are constructed with
// options. With an Arena, the arena bounds the number of live keys.
func NewGroup[K comparable](options ...func(*Attr)) *Group[K] {
	return &Group[K]{options: options}
}

// RLock acquires a read lock on k.
func (g *Group[K]) RLock(k K, h *Holder) error {
	return g.do(k, func(l *RWLock) error { return l.RLock(h) })
}

// TryRLock acquires a read lock on k without blocking.
func (g *Group[K]) TryRLock(k K, h *Holder) error {
	return g.do(k, func(l *RWLock) error { return l.TryRLock(h) })
}

// Lock acquires the write lock on k.
func (g *Group[K]) Lock(k K) error {
	return g.do(k, (*RWLock).Lock)
}

// TryLock acquires the write lock on k without blocking.
func (g *Group[K]) TryLock(k K) error {
	return g.do(k, (*RWLock).TryLock)
}

// Unlock releases one hold on k, as RWLock.Unlock does.
// Unlocking a key that is not held returns ErrInvalid.
func (g *Group[K]) Unlock(k K, h *Holder) error {
	if g == nil {
		return ErrInvalid
	}
	e, ok := g.m.Load(k)
	if !ok {
		return ErrInvalid
	}
	if err := e.l.Unlock(h); err != nil {
		return err
	}
	g.release(k)
	return nil
}

// Len returns the number of keys with live locks.
func (g *Group[K]) Len() int {
	return g.m.Size()
}

func (g *Group[K]) do(k K, acquire func(*RWLock) error) error {
	if g == nil {
		return ErrInvalid
	}
	e, err := g.retain(k)
	if err != nil {
		return err
	}
	if err = acquire(e.l); err != nil {
		g.release(k)
		return err
	}
	return nil
}

func (g *Group[K]) retain(k K) (*groupEntry, error) {
	var err error
	e, _ := g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *groupEntry]) (*pb.EntryOf[K, *groupEntry], *groupEntry, bool) {
			if l != nil {
				l.Value.ref++
				return l, l.Value, true
			}
			lk, e := New(g.options...)
			if e != nil {
				err = e
				return nil, nil, false
			}
			v := &groupEntry{l: lk, ref: 1}
			return &pb.EntryOf[K, *groupEntry]{Value: v}, v, false
		},
	)
	return e, err
}

func (g *Group[K]) release(k K) {
	var dead *RWLock
	g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *groupEntry]) (*pb.EntryOf[K, *groupEntry], *groupEntry, bool) {
			if l == nil {
				return nil, nil, false
			}
			l.Value.ref--
			if l.Value.ref <= 0 {
				dead = l.Value.l
				return nil, nil, true
			}
			return l, l.Value, true
		},
	)
	if dead != nil {
		_ = dead.Destroy()
	}
}
