//go:build !rwlock_disable_padding

package opt

import "unsafe"

// Padding reports whether per-goroutine structures are padded to a cache line.
const Padding = true

// CounterPad is the padding that follows a single int counter so that
// counters owned by different goroutines never share a cache line.
// Padding is on by default; disable it with -tags=rwlock_disable_padding.
type CounterPad [(CacheLineSize - unsafe.Sizeof(int(0))%CacheLineSize) % CacheLineSize]byte
