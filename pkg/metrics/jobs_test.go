package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewJobMetrics(reg)
	metrics.ObserveDuration("drift_audit", 120*time.Millisecond)
	metrics.IncSuccess("drift_audit")
	metrics.IncFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "job_success", "job", "drift_audit"); err != nil || got != 1 {
		t.Fatalf("expected job_success=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "job_failure", "job", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unlabeled failure under unknown, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "job_duration_seconds", "job", "drift_audit"); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f (%v)", got, err)
	}
}

func TestNilJobMetricsAreSafe(t *testing.T) {
	var m *JobMetrics
	m.ObserveDuration("x", time.Second)
	m.IncSuccess("x")
	m.IncFailure("x")
}
