package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronMetricsRecordsOutcomesAndCycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	metrics.ObserveJob("loan-overdue", JobSucceeded, 250*time.Millisecond, finished)
	metrics.ObserveJob("ledger-reconcile", JobFailed, time.Second, finished)
	metrics.ObserveJob("", JobTimedOut, time.Second, finished)
	metrics.IncCycle(CycleRan)
	metrics.IncCycle(CycleSkipped)
	metrics.IncCycle(CycleSkipped)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", JobFailed); err != nil {
		t.Fatalf("fetch failed runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected one failed run, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "job", "unknown"); err != nil {
		t.Fatalf("fetch unnamed job: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unnamed job under unknown, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cron_cycles_total", "result", CycleSkipped); err != nil {
		t.Fatalf("fetch skipped cycles: %v", err)
	} else if got != 2 {
		t.Fatalf("expected two skipped cycles, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "loan-overdue"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 0.25 {
		t.Fatalf("expected duration sum 0.25, got %f", got)
	}

	gauge := findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds")
	if gauge == nil || len(gauge.GetMetric()) != 1 {
		t.Fatalf("expected last-success gauge only for the succeeded job")
	}
	if got := gauge.GetMetric()[0].GetGauge().GetValue(); got != float64(finished.Unix()) {
		t.Fatalf("expected last success %d, got %f", finished.Unix(), got)
	}
}

func TestCronMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewCronMetrics(nil)
	metrics.ObserveJob("loan-overdue", JobSucceeded, time.Second, time.Now())
	metrics.IncCycle(CycleRan)

	var unset *CronMetrics
	unset.IncCycle(CycleRan)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
