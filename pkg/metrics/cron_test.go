package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "ledger-transfer-reconcile"
	m.Observe(job, 250*time.Millisecond, nil)
	m.Observe(job, 100*time.Millisecond, errors.New("custody down"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "pullstream_cron_job_runs_total", "outcome", "success"); err != nil || got != 1 {
		t.Fatalf("expected one success, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "pullstream_cron_job_runs_total", "outcome", "failure"); err != nil || got != 1 {
		t.Fatalf("expected one failure, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "pullstream_cron_job_duration_seconds", "job", job); err != nil || got < 0.35 {
		t.Fatalf("expected duration sum >= 0.35, got %f err=%v", got, err)
	}
	if findMetricFamily(mfs, "pullstream_cron_job_last_success_timestamp_seconds") == nil {
		t.Fatalf("expected last success gauge")
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("job", time.Second, nil)
	NewCronJobMetrics(nil).Observe("", time.Second, errors.New("x"))
}
