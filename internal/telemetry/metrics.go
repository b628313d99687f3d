// Package telemetry provides Prometheus metrics, tracing and logger setup for the tracker.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionsOpened  *prometheus.CounterVec
	SessionsClosed  *prometheus.CounterVec
	OpensFiltered   *prometheus.CounterVec
	OpensDuplicate  prometheus.Counter
	ClosesNotFound  prometheus.Counter
	StoreFailures   *prometheus.CounterVec
	Sweeps          *prometheus.CounterVec
	SweepSessions   *prometheus.CounterVec
	DispatchDropped prometheus.Counter

	// Histograms (seconds)
	SweepDuration prometheus.Observer

	// Gauges
	OpenIndexSize prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_sessions_opened_total", Help: "Voice sessions opened"}, []string{"approximate"})
		SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_sessions_closed_total", Help: "Voice sessions closed"}, []string{"approximate"})
		OpensFiltered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_opens_filtered_total", Help: "Session opens skipped by tracking policy"}, []string{"reason"})
		OpensDuplicate = promauto.NewCounter(prometheus.CounterOpts{Name: "voicestats_opens_duplicate_total", Help: "Session opens rejected because one was already open"})
		ClosesNotFound = promauto.NewCounter(prometheus.CounterOpts{Name: "voicestats_closes_not_found_total", Help: "Session closes with no open session to close"})
		StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_store_failures_total", Help: "Failed session store operations"}, []string{"op"})
		Sweeps = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_sweeps_total", Help: "Reconciliation sweeps run"}, []string{"result"})
		SweepSessions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicestats_sweep_sessions_total", Help: "Open sessions examined by sweeps"}, []string{"action"})
		DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "voicestats_dispatch_dropped_total", Help: "Voice transitions dropped after shutdown"})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "voicestats_sweep_duration_seconds", Help: "Reconciliation sweep duration seconds", Buckets: prometheus.DefBuckets})
		OpenIndexSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "voicestats_open_index_size", Help: "Sessions held in the in-memory open index"})
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// IncOpened counts an opened session.
func IncOpened(approximate bool) {
	if SessionsOpened != nil {
		SessionsOpened.WithLabelValues(boolLabel(approximate)).Inc()
	}
}

// IncClosed counts a closed session.
func IncClosed(approximate bool) {
	if SessionsClosed != nil {
		SessionsClosed.WithLabelValues(boolLabel(approximate)).Inc()
	}
}

// IncFiltered counts an open skipped for reason.
func IncFiltered(reason string) {
	if OpensFiltered != nil {
		OpensFiltered.WithLabelValues(reason).Inc()
	}
}

// IncDuplicate counts a rejected duplicate open.
func IncDuplicate() {
	if OpensDuplicate != nil {
		OpensDuplicate.Inc()
	}
}

// IncNotFound counts a close with nothing to close.
func IncNotFound() {
	if ClosesNotFound != nil {
		ClosesNotFound.Inc()
	}
}

// IncStoreFailure counts a failed store operation.
func IncStoreFailure(op string) {
	if StoreFailures != nil {
		StoreFailures.WithLabelValues(op).Inc()
	}
}

// IncSweep counts a finished sweep by result (ok, aborted, skipped).
func IncSweep(result string) {
	if Sweeps != nil {
		Sweeps.WithLabelValues(result).Inc()
	}
}

// AddSweepSessions counts sessions handled by a sweep with the given action.
func AddSweepSessions(action string, n int) {
	if SweepSessions != nil && n > 0 {
		SweepSessions.WithLabelValues(action).Add(float64(n))
	}
}

// IncDispatchDropped counts a transition that arrived after shutdown.
func IncDispatchDropped() {
	if DispatchDropped != nil {
		DispatchDropped.Inc()
	}
}

// SetOpenIndexSize records the open index size.
func SetOpenIndexSize(n int) {
	if OpenIndexSize != nil {
		OpenIndexSize.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
