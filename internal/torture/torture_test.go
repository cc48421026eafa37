package torture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/llxisdsh/rwlock"
	"github.com/llxisdsh/rwlock/internal/opt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Readers = 6
	cfg.Writers = 2
	cfg.Duration = 300 * time.Millisecond
	if opt.Race {
		cfg.Readers = 3
		cfg.Duration = 150 * time.Millisecond
	}
	return cfg
}

func sumAttempts(t *testing.T, reg *prometheus.Registry, side, outcome string) int64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != "rwtorture_attempts_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["side"] == side && labels["outcome"] == outcome {
				sum += m.GetCounter().GetValue()
			}
		}
	}
	return int64(sum)
}

func TestRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rep, err := Run(context.Background(), testConfig(), zaptest.NewLogger(t), reg)
	require.NoError(t, err)

	require.Positive(t, rep.ReadAcquired)
	require.Positive(t, rep.WriteAcquired)
	require.Positive(t, rep.NestedReads)
	require.Positive(t, rep.PeakReaders)
	require.Positive(t, rep.Elapsed)

	require.Equal(t, rep.ReadAcquired, sumAttempts(t, reg, sideRead, outcomeAcquired))
	require.Equal(t, rep.ReadBusy, sumAttempts(t, reg, sideRead, outcomeBusy))
	require.Equal(t, rep.ReadTimedOut, sumAttempts(t, reg, sideRead, outcomeTimedOut))
	require.Equal(t, rep.WriteAcquired, sumAttempts(t, reg, sideWrite, outcomeAcquired))
	require.Equal(t, rep.WriteBusy, sumAttempts(t, reg, sideWrite, outcomeBusy))
	require.Equal(t, rep.WriteTimedOut, sumAttempts(t, reg, sideWrite, outcomeTimedOut))
}

func TestRun_BlockingOnly(t *testing.T) {
	cfg := testConfig()
	cfg.TryPercent = 0
	cfg.TimedPercent = 0
	rep, err := Run(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.Zero(t, rep.ReadBusy+rep.ReadTimedOut+rep.WriteBusy+rep.WriteTimedOut)
	require.Positive(t, rep.WriteAcquired)
}

func TestRun_Canceled(t *testing.T) {
	cfg := testConfig()
	cfg.Duration = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	_, err := Run(ctx, cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Duration = 10 * time.Millisecond
	_, err := Run(context.Background(), cfg, zap.NewNop(), reg)
	require.NoError(t, err)
	_, err = Run(context.Background(), cfg, zap.NewNop(), reg)
	require.ErrorContains(t, err, "register metrics")
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Depth = 0
	_, err := Run(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "depth")
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "readers only", modify: func(c *Config) { c.Writers = 0 }},
		{name: "no workers", modify: func(c *Config) { c.Readers, c.Writers = 0, 0 }, want: "no workers"},
		{name: "negative", modify: func(c *Config) { c.Readers = -1 }, want: "negative worker count"},
		{name: "duration", modify: func(c *Config) { c.Duration = 0 }, want: "duration"},
		{name: "timeout", modify: func(c *Config) { c.Timeout = -time.Second }, want: "timeout"},
		{name: "percent", modify: func(c *Config) { c.TryPercent, c.TimedPercent = 60, 50 }, want: "sum to at most 100"},
		{name: "arena", modify: func(c *Config) { c.ArenaSize = -1 }, want: "arena size"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func newTestRunner(t *testing.T) *runner {
	m, err := newMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return &runner{cfg: DefaultConfig(), lock: rwlock.NewStatic(), log: zaptest.NewLogger(t), metrics: m}
}

func TestRunner_DetectsViolations(t *testing.T) {
	r := newTestRunner(t)

	r.readers.Store(1)
	require.ErrorIs(t, r.checkWrite(), ErrViolation)
	r.readers.Store(0)
	require.Zero(t, r.writers.Load())

	r.writers.Store(1)
	require.ErrorIs(t, r.checkWrite(), ErrViolation)
	require.ErrorIs(t, r.checkRead(2), ErrViolation)
	require.EqualValues(t, 1, r.writers.Load())
	require.Zero(t, r.readers.Load())
	require.EqualValues(t, 2, r.report.peakReaders.Load())
}

func TestRunner_Outcome(t *testing.T) {
	r := newTestRunner(t)
	boom := errors.New("boom")
	for _, tc := range []struct {
		err     error
		outcome string
		done    bool
		fatal   error
	}{
		{err: nil, outcome: outcomeAcquired},
		{err: rwlock.ErrBusy, outcome: outcomeBusy},
		{err: rwlock.ErrTimedOut, outcome: outcomeTimedOut},
		{err: context.Canceled, done: true},
		{err: context.DeadlineExceeded, done: true},
		{err: boom, done: true, fatal: boom},
	} {
		outcome, done, fatal := r.outcome(tc.err)
		require.Equal(t, tc.outcome, outcome)
		require.Equal(t, tc.done, done)
		require.Equal(t, tc.fatal, fatal)
	}
}
