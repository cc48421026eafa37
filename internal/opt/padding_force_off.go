//go:build rwlock_disable_padding

package opt

// Padding reports whether per-goroutine structures are padded to a cache line.
const Padding = false

// CounterPad is empty when padding is force-disabled via the
// rwlock_disable_padding build tag.
type CounterPad [0]byte
