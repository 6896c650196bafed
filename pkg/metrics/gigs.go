package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GigMetrics counts engine operations and the funds they release.
type GigMetrics struct {
	operations *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
	released   *prometheus.CounterVec
}

func NewGigMetrics(reg prometheus.Registerer) *GigMetrics {
	if reg == nil {
		return &GigMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pullstream_gig_operations_total",
		Help: "Gig engine operations by outcome code.",
	}, []string{"op", "outcome"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pullstream_gig_lock_wait_seconds",
		Help:    "Time spent waiting for the per-gig lock.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"op"})
	released := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pullstream_gig_released_amount_total",
		Help: "Sum of amounts committed to transfer instructions.",
	}, []string{"kind"})
	reg.MustRegister(operations, lockWait, released)
	return &GigMetrics{operations: operations, lockWait: lockWait, released: released}
}

// ObserveOperation records one engine call. outcome is "ok" or an error code.
func (m *GigMetrics) ObserveOperation(op, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

func (m *GigMetrics) ObserveLockWait(op string, d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(normalizeLabel(op)).Observe(d.Seconds())
}

// AddReleased tracks released funds. Float precision is fine for dashboards;
// the ledger_transfers table stays authoritative.
func (m *GigMetrics) AddReleased(kind string, amount float64) {
	if m == nil || m.released == nil || amount <= 0 {
		return
	}
	m.released.WithLabelValues(normalizeLabel(kind)).Add(amount)
}
