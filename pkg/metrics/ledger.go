package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks calls to the custody service.
type LedgerMetrics struct {
	transfers *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pullstream_ledger_transfers_total",
		Help: "Ledger transfer attempts by kind and result.",
	}, []string{"kind", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pullstream_ledger_transfer_duration_seconds",
		Help:    "Latency of ledger transfer calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(transfers, latency)
	return &LedgerMetrics{transfers: transfers, latency: latency}
}

func (m *LedgerMetrics) ObserveTransfer(kind, result string, d time.Duration) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
	m.latency.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}
