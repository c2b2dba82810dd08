package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts journal writes and reconciliation results.
type LedgerMetrics struct {
	entries   *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	mismatch  prometheus.Counter
	reconcile prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Journal entries written, by type and status.",
	}, []string{"type", "status"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_refused_total",
		Help: "Money operations refused before any write, by error code.",
	}, []string{"code"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_mismatch_total",
		Help: "Members whose cached balance disagreed with their journal.",
	})
	reconcile := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_checked_total",
		Help: "Members checked by reconciliation.",
	})
	reg.MustRegister(entries, rejected, mismatch, reconcile)
	return &LedgerMetrics{
		entries:   entries,
		rejected:  rejected,
		mismatch:  mismatch,
		reconcile: reconcile,
	}
}

// IncEntry counts a journal row written with the given type and status.
func (l *LedgerMetrics) IncEntry(txType, status string) {
	if l == nil || l.entries == nil {
		return
	}
	l.entries.WithLabelValues(normalizeLabel(txType), normalizeLabel(status)).Inc()
}

// IncRefused counts an operation refused with the given error code.
func (l *LedgerMetrics) IncRefused(code string) {
	if l == nil || l.rejected == nil {
		return
	}
	l.rejected.WithLabelValues(normalizeLabel(code)).Inc()
}

// ObserveReconcile records one reconciliation check.
func (l *LedgerMetrics) ObserveReconcile(consistent bool) {
	if l == nil || l.reconcile == nil {
		return
	}
	l.reconcile.Inc()
	if !consistent {
		l.mismatch.Inc()
	}
}
