package rwlock

import "github.com/llxisdsh/rwlock/internal/opt"

// Holder carries the read-lock count of one goroutine across every RWLock
// it uses.
//
// A goroutine that already holds a read lock may take another one even
// while writers are waiting; the Holder is how the lock tells such a
// goroutine apart from a fresh reader. Each goroutine must use its own
// Holder and must pass the same Holder to the matching Unlock.
//
// The zero value is ready to use. A Holder is padded to a cache line.
type Holder struct {
	_       noCopy
	rdlocks int
	_       opt.CounterPad
}

// ReadLocks returns the number of read locks held through h.
func (h *Holder) ReadLocks() int {
	return h.rdlocks
}
