//go:build race

package opt

// Race reports whether the binary was built with the race detector.
// Stress loops scale their iteration counts down under it.
const Race = true
