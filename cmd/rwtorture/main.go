// Command rwtorture stresses the rwlock package from many goroutines and
// fails when it observes a mutual exclusion violation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/llxisdsh/rwlock/internal/torture"
)

type options struct {
	torture     torture.Config
	metricsAddr string
	logLevel    string
	linger      time.Duration
}

func bindFlags(fs *pflag.FlagSet, o *options) {
	fs.IntVarP(&o.torture.Readers, "readers", "r", o.torture.Readers, "reader goroutines")
	fs.IntVarP(&o.torture.Writers, "writers", "w", o.torture.Writers, "writer goroutines")
	fs.DurationVarP(&o.torture.Duration, "duration", "d", o.torture.Duration, "length of the run")
	fs.IntVar(&o.torture.Depth, "depth", o.torture.Depth, "largest number of nested read locks per iteration")
	fs.DurationVar(&o.torture.Timeout, "timeout", o.torture.Timeout, "deadline offset of timed acquisitions")
	fs.IntVar(&o.torture.TryPercent, "try-percent", o.torture.TryPercent, "share of non-blocking acquisitions")
	fs.IntVar(&o.torture.TimedPercent, "timed-percent", o.torture.TimedPercent, "share of timed acquisitions")
	fs.Int64Var(&o.torture.ArenaSize, "arena", o.torture.ArenaSize, "lock arena capacity, 0 for unbounded")
	fs.Uint64Var(&o.torture.Seed, "seed", o.torture.Seed, "random seed")
	fs.StringVar(&o.metricsAddr, "metrics-addr", o.metricsAddr, "serve Prometheus metrics on this address, e.g. :9090")
	fs.DurationVar(&o.linger, "linger", o.linger, "keep serving metrics this long after the run")
	fs.StringVar(&o.logLevel, "log-level", o.logLevel, "debug, info, warn or error")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newRootCmd() *cobra.Command {
	o := &options{
		torture:  torture.DefaultConfig(),
		logLevel: "info",
	}
	cmd := &cobra.Command{
		Use:           "rwtorture",
		Short:         "Stress a writer-priority reader/writer lock",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.torture.Validate(); err != nil {
				return err
			}
			log, err := newLogger(o.logLevel)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			defer func() { _ = log.Sync() }()
			return run(cmd.Context(), o, log)
		},
	}
	bindFlags(cmd.Flags(), o)
	return cmd
}

func run(ctx context.Context, o *options, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	if o.metricsAddr != "" {
		ln, err := net.Listen("tcp", o.metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		srv := &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rep, err := torture.Run(ctx, o.torture, log, reg)
	if err != nil {
		return err
	}
	fmt.Printf("reads:  %d acquired, %d busy, %d timed out, %d nested, peak %d\n",
		rep.ReadAcquired, rep.ReadBusy, rep.ReadTimedOut, rep.NestedReads, rep.PeakReaders)
	fmt.Printf("writes: %d acquired, %d busy, %d timed out\n",
		rep.WriteAcquired, rep.WriteBusy, rep.WriteTimedOut)

	if o.metricsAddr != "" && o.linger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.linger):
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rwtorture:", err)
		stop()
		os.Exit(1)
	}
}
