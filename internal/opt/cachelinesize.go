package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used in structure padding to prevent false sharing.
// It's automatically calculated using the `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// padFor returns the number of bytes that round size up to a whole cache line.
func padFor(size uintptr) uintptr {
	return (CacheLineSize - size%CacheLineSize) % CacheLineSize
}
