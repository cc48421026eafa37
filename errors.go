package rwlock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned for a nil or destroyed lock, a nil Holder on a
	// read-side call, and for unlocking a lock that is not held.
	ErrInvalid = errors.New("rwlock: invalid argument")

	// ErrNoMemory is returned when a lock cannot be allocated.
	ErrNoMemory = errors.New("rwlock: out of memory")

	// ErrBusy is returned by TryRLock and TryLock when the lock cannot be
	// taken without waiting.
	ErrBusy = errors.New("rwlock: busy")

	// ErrTimedOut is returned by TimedRLock and TimedLock when the deadline
	// passes before the lock is acquired.
	ErrTimedOut = errors.New("rwlock: timed out")

	// ErrTooManyReaders is returned when the reader count is at its maximum.
	ErrTooManyReaders = errors.New("rwlock: too many readers")
)

// errTryTooManyReaders matches both ErrBusy and ErrTooManyReaders.
var errTryTooManyReaders = fmt.Errorf("%w: %w", ErrBusy, ErrTooManyReaders)
