package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsCountsEntriesAndMismatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)
	metrics.IncEntry("DEPOSIT", "APPROVED")
	metrics.IncEntry("DEPOSIT", "APPROVED")
	metrics.IncRefused("INSUFFICIENT_FUNDS")
	metrics.ObserveReconcile(true)
	metrics.ObserveReconcile(false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_entries_total", "type", "DEPOSIT"); err != nil {
		t.Fatalf("fetch entries: %v", err)
	} else if got != 2 {
		t.Fatalf("expected entries=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "ledger_operations_refused_total", "code", "INSUFFICIENT_FUNDS"); err != nil {
		t.Fatalf("fetch refused: %v", err)
	} else if got != 1 {
		t.Fatalf("expected refused=1, got %f", got)
	}

	checked := findMetricFamily(mfs, "ledger_reconcile_checked_total")
	if checked == nil || checked.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected two reconcile checks")
	}
	mismatch := findMetricFamily(mfs, "ledger_reconcile_mismatch_total")
	if mismatch == nil || mismatch.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one reconcile mismatch")
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var metrics *LedgerMetrics
	metrics.IncEntry("DEPOSIT", "APPROVED")
	metrics.IncRefused("")
	metrics.ObserveReconcile(false)

	NewLedgerMetrics(nil).IncEntry("DEPOSIT", "APPROVED")
}
