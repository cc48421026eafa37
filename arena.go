package rwlock

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Arena is a fixed-capacity pool of lock slots.
//
// Locks built with WithArena take one slot on construction and give it back
// on Destroy. When every slot is taken, construction fails with ErrNoMemory
// instead of blocking, the way an allocator reports exhaustion.
type Arena struct {
	_    noCopy
	sem  *semaphore.Weighted
	size int64
	live atomic.Int64
}

// NewArena creates an Arena holding at most size live locks.
// A size below one yields an arena that refuses every allocation.
func NewArena(size int64) *Arena {
	size = max(size, 0)
	return &Arena{
		sem:  semaphore.NewWeighted(size),
		size: size,
	}
}

// Cap returns the number of slots.
func (a *Arena) Cap() int64 {
	return a.size
}

// Live returns the number of slots currently taken.
func (a *Arena) Live() int64 {
	return a.live.Load()
}

func (a *Arena) alloc() error {
	if a == nil {
		return nil
	}
	if !a.sem.TryAcquire(1) {
		return fmt.Errorf("%w: arena of %d locks exhausted", ErrNoMemory, a.size)
	}
	a.live.Add(1)
	return nil
}

func (a *Arena) free() {
	if a == nil {
		return
	}
	a.live.Add(-1)
	a.sem.Release(1)
}
