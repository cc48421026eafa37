package torture

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sideRead  = "read"
	sideWrite = "write"

	modeBlock = "block"
	modeTry   = "try"
	modeTimed = "timed"

	outcomeAcquired = "acquired"
	outcomeBusy     = "busy"
	outcomeTimedOut = "timed_out"
)

type metrics struct {
	attempts    *prometheus.CounterVec
	nested      prometheus.Counter
	peakReaders prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rwtorture",
			Name:      "attempts_total",
			Help:      "Lock acquisition attempts by side, mode and outcome.",
		}, []string{"side", "mode", "outcome"}),
		nested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rwtorture",
			Name:      "nested_reads_total",
			Help:      "Read locks taken while the goroutine already held one.",
		}),
		peakReaders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rwtorture",
			Name:      "peak_readers",
			Help:      "Largest number of concurrent read holds observed.",
		}),
	}
	for _, c := range []prometheus.Collector{m.attempts, m.nested, m.peakReaders} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
