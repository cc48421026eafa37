package torture

import (
	"errors"
	"fmt"
	"time"
)

// Config describes one stress run.
type Config struct {
	// Readers and Writers are the number of goroutines on each side.
	Readers int
	Writers int

	// Duration bounds the run.
	Duration time.Duration

	// Depth is the largest number of nested read locks a reader takes per
	// iteration. Nested locks after the first go through the recursive
	// read path.
	Depth int

	// Timeout is the deadline offset used by timed acquisitions.
	Timeout time.Duration

	// TryPercent and TimedPercent are the shares of iterations that use
	// the non-blocking and timed variants. The rest block.
	TryPercent   int
	TimedPercent int

	// ArenaSize bounds lock allocation. Zero means unbounded.
	ArenaSize int64

	// Seed seeds the per-worker random sources.
	Seed uint64
}

// DefaultConfig returns the configuration used by rwtorture without flags.
func DefaultConfig() Config {
	return Config{
		Readers:      8,
		Writers:      2,
		Duration:     5 * time.Second,
		Depth:        3,
		Timeout:      time.Millisecond,
		TryPercent:   20,
		TimedPercent: 20,
		Seed:         1,
	}
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.Readers < 0 || c.Writers < 0 {
		errs = append(errs, fmt.Errorf("negative worker count: readers=%d writers=%d", c.Readers, c.Writers))
	}
	if c.Readers+c.Writers == 0 {
		errs = append(errs, errors.New("no workers"))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %v", c.Duration))
	}
	if c.Depth < 1 {
		errs = append(errs, fmt.Errorf("depth must be at least 1, got %d", c.Depth))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.TryPercent < 0 || c.TimedPercent < 0 || c.TryPercent+c.TimedPercent > 100 {
		errs = append(errs, fmt.Errorf("try%%=%d timed%%=%d must be non-negative and sum to at most 100", c.TryPercent, c.TimedPercent))
	}
	if c.ArenaSize < 0 {
		errs = append(errs, fmt.Errorf("arena size must not be negative, got %d", c.ArenaSize))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("torture: invalid config: %w", errors.Join(errs...))
}
