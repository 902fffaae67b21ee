// Package metrics implements the engine metric ports with Prometheus collectors.
package metrics

import (
	"time"

	"fxHistory/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fxhistory"

// Prometheus implements ports.HistoryMetrics and ports.SyncMetrics.
type Prometheus struct {
	barsWritten      *prometheus.CounterVec
	barsSynchronized *prometheus.CounterVec
	barsRejected     *prometheus.CounterVec
	openSeries       prometheus.Gauge
	syncRuns         *prometheus.CounterVec
	syncDuration     prometheus.Histogram
}

// New creates the collectors and registers them with r. A nil r uses prometheus.DefaultRegisterer;
// collectors registered before are reused.
func New(r prometheus.Registerer) (*Prometheus, error) {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	m := &Prometheus{
		barsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "bars_written_total",
			Help: "Bars written to history files",
		}, []string{"symbol", "timeframe"}),
		barsSynchronized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "bars_synchronized_total",
			Help: "Minute bars replaced by synchronization",
		}, []string{"symbol"}),
		barsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "bars_rejected_total",
			Help: "Bar batches rejected by validation or ordering",
		}, []string{"symbol", "timeframe", "reason"}),
		openSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "history", Name: "open_series",
			Help: "Symbol series currently open",
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "runs_total",
			Help: "Finished sync runs by status",
		}, []string{"symbol", "status"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "run_duration_seconds",
			Help:    "Duration of one symbol sync run",
			Buckets: prometheus.DefBuckets,
		}),
	}

	var err error
	if m.barsWritten, err = register(r, m.barsWritten); err != nil {
		return nil, err
	}
	if m.barsSynchronized, err = register(r, m.barsSynchronized); err != nil {
		return nil, err
	}
	if m.barsRejected, err = register(r, m.barsRejected); err != nil {
		return nil, err
	}
	if m.openSeries, err = register(r, m.openSeries); err != nil {
		return nil, err
	}
	if m.syncRuns, err = register(r, m.syncRuns); err != nil {
		return nil, err
	}
	if m.syncDuration, err = register(r, m.syncDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Prometheus) BarsWritten(symbol string, tf domain.Timeframe, n int) {
	m.barsWritten.WithLabelValues(symbol, tf.String()).Add(float64(n))
}

func (m *Prometheus) BarsSynchronized(symbol string, n int) {
	m.barsSynchronized.WithLabelValues(symbol).Add(float64(n))
}

func (m *Prometheus) BarsRejected(symbol string, tf domain.Timeframe, reason string) {
	m.barsRejected.WithLabelValues(symbol, tf.String(), reason).Inc()
}

func (m *Prometheus) SeriesOpened(string) { m.openSeries.Inc() }

func (m *Prometheus) SeriesClosed(string) { m.openSeries.Dec() }

func (m *Prometheus) SyncRunFinished(symbol, status string, elapsed time.Duration) {
	m.syncRuns.WithLabelValues(symbol, status).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}
