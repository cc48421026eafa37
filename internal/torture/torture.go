// Package torture drives an RWLock from many goroutines and checks mutual
// exclusion while it runs.
package torture

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/rwlock"
)

// ErrViolation is returned when a worker observes a broken invariant.
var ErrViolation = errors.New("torture: invariant violated")

// Report summarizes a run.
type Report struct {
	ReadAcquired  int64
	ReadBusy      int64
	ReadTimedOut  int64
	NestedReads   int64
	WriteAcquired int64
	WriteBusy     int64
	WriteTimedOut int64
	PeakReaders   int64
	Elapsed       time.Duration
}

type runner struct {
	cfg     Config
	lock    *rwlock.Static
	log     *zap.Logger
	metrics *metrics

	readers atomic.Int64
	writers atomic.Int64
	report  struct {
		readAcquired, readBusy, readTimedOut    atomic.Int64
		nested                                  atomic.Int64
		writeAcquired, writeBusy, writeTimedOut atomic.Int64
		peakReaders                             atomic.Int64
	}
}

// Run stresses a freshly built lock for cfg.Duration or until ctx is done.
// Metrics are registered with reg. It returns ErrViolation, wrapped with
// details, if any worker saw two writers, or a writer and a reader, inside
// the lock at once.
func Run(ctx context.Context, cfg Config, log *zap.Logger, reg prometheus.Registerer) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	m, err := newMetrics(reg)
	if err != nil {
		return Report{}, fmt.Errorf("torture: register metrics: %w", err)
	}
	var options []func(*rwlock.Attr)
	if cfg.ArenaSize > 0 {
		options = append(options, rwlock.WithArena(rwlock.NewArena(cfg.ArenaSize)))
	}
	r := &runner{
		cfg:     cfg,
		lock:    rwlock.NewStatic(options...),
		log:     log,
		metrics: m,
	}
	defer func() {
		if err := r.lock.Destroy(); err != nil {
			log.Warn("destroy lock", zap.Error(err))
		}
	}()

	log.Info("torture run starting",
		zap.Int("readers", cfg.Readers),
		zap.Int("writers", cfg.Writers),
		zap.Duration("duration", cfg.Duration),
		zap.Int("depth", cfg.Depth),
		zap.Int("try_percent", cfg.TryPercent),
		zap.Int("timed_percent", cfg.TimedPercent),
	)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.Readers {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		g.Go(func() error { return r.reader(ctx, i, rng) })
	}
	for i := range cfg.Writers {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.Readers+i)))
		g.Go(func() error { return r.writer(ctx, i, rng) })
	}
	err = g.Wait()

	rep := r.snapshot()
	rep.Elapsed = time.Since(start)
	log.Info("torture run finished",
		zap.Int64("read_acquired", rep.ReadAcquired),
		zap.Int64("read_busy", rep.ReadBusy),
		zap.Int64("read_timed_out", rep.ReadTimedOut),
		zap.Int64("nested_reads", rep.NestedReads),
		zap.Int64("write_acquired", rep.WriteAcquired),
		zap.Int64("write_busy", rep.WriteBusy),
		zap.Int64("write_timed_out", rep.WriteTimedOut),
		zap.Int64("peak_readers", rep.PeakReaders),
		zap.Duration("elapsed", rep.Elapsed),
		zap.Error(err),
	)
	return rep, err
}

func (r *runner) mode(rng *rand.Rand) string {
	p := rng.IntN(100)
	switch {
	case p < r.cfg.TryPercent:
		return modeTry
	case p < r.cfg.TryPercent+r.cfg.TimedPercent:
		return modeTimed
	default:
		return modeBlock
	}
}

// outcome classifies err. done is set when the worker must stop.
func (r *runner) outcome(err error) (outcome string, done bool, fatal error) {
	switch {
	case err == nil:
		return outcomeAcquired, false, nil
	case errors.Is(err, rwlock.ErrBusy):
		return outcomeBusy, false, nil
	case errors.Is(err, rwlock.ErrTimedOut):
		return outcomeTimedOut, false, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", true, nil
	default:
		return "", true, err
	}
}

func (r *runner) reader(ctx context.Context, id int, rng *rand.Rand) error {
	log := r.log.With(zap.String("side", sideRead), zap.Int("worker", id))
	var h rwlock.Holder
	for ctx.Err() == nil {
		mode := r.mode(rng)
		var err error
		switch mode {
		case modeTry:
			err = r.lock.TryRLock(&h)
		case modeTimed:
			err = r.lock.TimedRLock(&h, time.Now().Add(r.cfg.Timeout))
		default:
			err = r.lock.RLockContext(ctx, &h)
		}
		outcome, done, fatal := r.outcome(err)
		if fatal != nil {
			log.Error("acquire read lock", zap.String("mode", mode), zap.Error(fatal))
			return fatal
		}
		if done {
			break
		}
		r.metrics.attempts.WithLabelValues(sideRead, mode, outcome).Inc()
		switch outcome {
		case outcomeBusy:
			r.report.readBusy.Add(1)
			continue
		case outcomeTimedOut:
			r.report.readTimedOut.Add(1)
			continue
		}
		r.report.readAcquired.Add(1)

		held := 1
		for range rng.IntN(r.cfg.Depth) {
			if err := r.lock.RLock(&h); err != nil {
				log.Error("nested read lock", zap.Error(err))
				r.unlockReads(&h, held)
				return fmt.Errorf("nested read: %w", err)
			}
			held++
			r.report.nested.Add(1)
			r.metrics.nested.Inc()
		}

		err = r.checkRead(held)
		r.unlockReads(&h, held)
		if err != nil {
			log.Error("invariant", zap.Error(err))
			return err
		}
	}
	if n := h.ReadLocks(); n != 0 {
		err := fmt.Errorf("%w: reader %d finished with %d read locks", ErrViolation, id, n)
		log.Error("invariant", zap.Error(err))
		return err
	}
	return nil
}

func (r *runner) checkRead(held int) error {
	n := r.readers.Add(int64(held))
	defer r.readers.Add(-int64(held))
	for {
		peak := r.report.peakReaders.Load()
		if n <= peak || r.report.peakReaders.CompareAndSwap(peak, n) {
			break
		}
	}
	r.metrics.peakReaders.Set(float64(r.report.peakReaders.Load()))
	if w := r.writers.Load(); w != 0 {
		return fmt.Errorf("%w: reader inside the lock with %d writers", ErrViolation, w)
	}
	return nil
}

func (r *runner) unlockReads(h *rwlock.Holder, n int) {
	for range n {
		if err := r.lock.Unlock(h); err != nil {
			r.log.Error("unlock read", zap.Error(err))
		}
	}
}

func (r *runner) writer(ctx context.Context, id int, rng *rand.Rand) error {
	log := r.log.With(zap.String("side", sideWrite), zap.Int("worker", id))
	for ctx.Err() == nil {
		mode := r.mode(rng)
		var err error
		switch mode {
		case modeTry:
			err = r.lock.TryLock()
		case modeTimed:
			err = r.lock.TimedLock(time.Now().Add(r.cfg.Timeout))
		default:
			err = r.lock.LockContext(ctx)
		}
		outcome, done, fatal := r.outcome(err)
		if fatal != nil {
			log.Error("acquire write lock", zap.String("mode", mode), zap.Error(fatal))
			return fatal
		}
		if done {
			break
		}
		r.metrics.attempts.WithLabelValues(sideWrite, mode, outcome).Inc()
		switch outcome {
		case outcomeBusy:
			r.report.writeBusy.Add(1)
			continue
		case outcomeTimedOut:
			r.report.writeTimedOut.Add(1)
			continue
		}
		r.report.writeAcquired.Add(1)

		err = r.checkWrite()
		if uerr := r.lock.Unlock(nil); uerr != nil {
			log.Error("unlock write", zap.Error(uerr))
			return uerr
		}
		if err != nil {
			log.Error("invariant", zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *runner) checkWrite() error {
	defer r.writers.Add(-1)
	if w := r.writers.Add(1); w != 1 {
		return fmt.Errorf("%w: %d writers inside the lock", ErrViolation, w)
	}
	if n := r.readers.Load(); n != 0 {
		return fmt.Errorf("%w: writer inside the lock with %d readers", ErrViolation, n)
	}
	return nil
}

func (r *runner) snapshot() Report {
	return Report{
		ReadAcquired:  r.report.readAcquired.Load(),
		ReadBusy:      r.report.readBusy.Load(),
		ReadTimedOut:  r.report.readTimedOut.Load(),
		NestedReads:   r.report.nested.Load(),
		WriteAcquired: r.report.writeAcquired.Load(),
		WriteBusy:     r.report.writeBusy.Load(),
		WriteTimedOut: r.report.writeTimedOut.Load(),
		PeakReaders:   r.report.peakReaders.Load(),
	}
}
