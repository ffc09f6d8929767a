package metrics

import (
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics records outcomes of reconciliation operations.
type ReconcileMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	skipped  prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_operation_duration_seconds",
		Help:    "Duration of reconciliation operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_operation_total",
		Help: "Reconciliation operations by outcome.",
	}, []string{"operation", "outcome"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reversal_skipped_total",
		Help: "Stock reversals skipped because the inventory item no longer exists.",
	})
	reg.MustRegister(duration, outcomes, skipped)
	return &ReconcileMetrics{
		duration: duration,
		outcomes: outcomes,
		skipped:  skipped,
	}
}

// Observe records the duration and outcome of one operation.
func (m *ReconcileMetrics) Observe(operation string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.outcomes.WithLabelValues(op, Outcome(err)).Inc()
}

// AddSkippedReversals counts reversal steps skipped for missing items.
func (m *ReconcileMetrics) AddSkippedReversals(n int) {
	if m == nil || m.skipped == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

// Outcome maps an operation error onto a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	return strings.ToLower(string(typed.Code()))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
