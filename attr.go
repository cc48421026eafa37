package rwlock

import (
	"math"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxReaders is the largest number of concurrent read holds.
// It stays below the largest int32 so the reader count never reaches the
// encoding used for a writer.
const DefaultMaxReaders = math.MaxInt32 - 1

// Attr holds the construction attributes of an RWLock.
// Attributes are set with the With* options passed to New, NewStatic or
// NewGroup; the zero Attr describes an unbounded allocation, the real
// clock and DefaultMaxReaders.
type Attr struct {
	// arena bounds the number of live locks. Nil means unbounded.
	arena *Arena

	// clock measures deadlines of TimedRLock and TimedLock.
	// If nil, the real clock is used.
	clock clockwork.Clock

	// maxReaders caps the reader count. Values outside
	// (0, DefaultMaxReaders] are ignored.
	maxReaders int
}

// WithArena allocates locks from a, failing with ErrNoMemory once a is
// exhausted.
func WithArena(a *Arena) func(*Attr) {
	return func(c *Attr) {
		c.arena = a
	}
}

// WithClock sets the clock used to wait for deadlines. It is mostly useful
// with clockwork.NewFakeClock in tests.
func WithClock(clock clockwork.Clock) func(*Attr) {
	return func(c *Attr) {
		c.clock = clock
	}
}

// WithMaxReaders lowers the maximum number of concurrent read holds.
// If n is zero, negative or above DefaultMaxReaders, it is ignored.
func WithMaxReaders(n int) func(*Attr) {
	return func(c *Attr) {
		c.maxReaders = n
	}
}

func newAttr(options []func(*Attr)) Attr {
	var c Attr
	for _, o := range options {
		o(&c)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.maxReaders <= 0 || c.maxReaders > DefaultMaxReaders {
		c.maxReaders = DefaultMaxReaders
	}
	return c
}
