package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestGigMetricsCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGigMetrics(reg)

	m.ObserveOperation("pay", "ok")
	m.ObserveOperation("pay", "ok")
	m.ObserveOperation("pay", "NOTHING_TO_PAY")
	m.ObserveLockWait("pay", 3*time.Millisecond)
	m.AddReleased("payout", 50)
	m.AddReleased("payout", -1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "pullstream_gig_operations_total", "outcome", "ok"); err != nil || got != 2 {
		t.Fatalf("expected 2 ok pays, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "pullstream_gig_released_amount_total", "kind", "payout"); err != nil || got != 50 {
		t.Fatalf("expected 50 released, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "pullstream_gig_lock_wait_seconds", "op", "pay"); err != nil || got <= 0 {
		t.Fatalf("expected lock wait sample, got %f err=%v", got, err)
	}
}

func TestLedgerMetricsAndNilSafety(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.ObserveTransfer("payout", "failed", 20*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "pullstream_ledger_transfers_total", "result", "failed"); err != nil || got != 1 {
		t.Fatalf("expected one failed transfer, got %f err=%v", got, err)
	}

	var nilGig *GigMetrics
	nilGig.ObserveOperation("pause", "ok")
	NewLedgerMetrics(nil).ObserveTransfer("payout", "ok", time.Second)
}
